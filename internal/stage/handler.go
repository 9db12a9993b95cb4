package stage

import (
	"context"

	"squeeze/internal/queue"
)

// Handler describes the contract the pipeline needs from each stage.
// Prepare runs cheap validation before the item is claimed for work; Execute
// performs the stage and is expected to honor context cancellation.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}
