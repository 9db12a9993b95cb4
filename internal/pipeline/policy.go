package pipeline

import (
	"context"

	"squeeze/internal/queue"
)

// Stage names in pipeline order.
const (
	StageAnalysis      = "analysis"
	StageQualitySearch = "quality_search"
	StageEncoding      = "encoding"
)

// StageNames returns the pipeline stages in processing order.
func StageNames() []string {
	return []string{StageAnalysis, StageQualitySearch, StageEncoding}
}

// policy binds a stage to its slice of the item lifecycle: which items it may
// take, how it claims them, and where success lands them. A stage with an
// empty claim status holds its claim in dispatcher memory only; the others
// claim through a conditional status update so no second process can take the
// same item.
type policy struct {
	name   string
	source queue.Status
	claim  queue.Status
	done   queue.Status
	fetch  func(ctx context.Context, store *queue.Store) (*queue.Item, error)
}

// claimedStatus returns the status an in-flight item holds in the store.
func (p policy) claimedStatus() queue.Status {
	if p.claim != "" {
		return p.claim
	}
	return p.source
}

func analysisPolicy() policy {
	return policy{
		name:   StageAnalysis,
		source: queue.StatusNeedsAnalysis,
		done:   queue.StatusAnalyzed,
		fetch: func(ctx context.Context, store *queue.Store) (*queue.Item, error) {
			return store.NextForAnalysis(ctx)
		},
	}
}

func qualitySearchPolicy() policy {
	return policy{
		name:   StageQualitySearch,
		source: queue.StatusAnalyzed,
		claim:  queue.StatusQualitySearching,
		done:   queue.StatusQualitySearched,
		fetch: func(ctx context.Context, store *queue.Store) (*queue.Item, error) {
			return store.NextForQualitySearch(ctx)
		},
	}
}

func encodingPolicy() policy {
	return policy{
		name:   StageEncoding,
		source: queue.StatusQualitySearched,
		claim:  queue.StatusEncoding,
		done:   queue.StatusEncoded,
		fetch: func(ctx context.Context, store *queue.Store) (*queue.Item, error) {
			return store.NextForEncoding(ctx)
		},
	}
}
