package notifications

import (
	"context"
	"os"

	"log/slog"

	"squeeze/internal/logging"
	"squeeze/internal/pipeline"
	"squeeze/internal/queue"
)

// PipelineNotifier adapts the notification service to the pipeline's outcome
// callbacks. Delivery failures are logged and swallowed; the pipeline never
// blocks on the operator's phone.
type PipelineNotifier struct {
	service Service
	logger  *slog.Logger
}

// NewPipelineNotifier wraps the given service for pipeline consumption.
func NewPipelineNotifier(service Service, logger *slog.Logger) *PipelineNotifier {
	return &PipelineNotifier{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

func (p *PipelineNotifier) ItemEncoded(ctx context.Context, item *queue.Item) {
	if p == nil || p.service == nil || item == nil {
		return
	}
	payload := Payload{
		"name":      item.DisplayName,
		"finalFile": item.FinalPath,
	}
	if item.SizeBytes > 0 && item.FinalPath != "" {
		if info, err := os.Stat(item.FinalPath); err == nil && info.Size() > 0 {
			payload["savings"] = (1 - float64(info.Size())/float64(item.SizeBytes)) * 100
		}
	}
	if err := p.service.Publish(ctx, EventEncodingCompleted, payload); err != nil {
		p.logger.Debug("encoding notification failed", logging.Error(err))
	}
}

func (p *PipelineNotifier) ItemFailed(ctx context.Context, item *queue.Item, stageName, message string) {
	if p == nil || p.service == nil || item == nil {
		return
	}
	err := p.service.Publish(ctx, EventItemFailed, Payload{
		"name":  item.DisplayName,
		"stage": stageName,
		"error": message,
	})
	if err != nil {
		p.logger.Debug("failure notification failed", logging.Error(err))
	}
}

func (p *PipelineNotifier) WorkerReset(ctx context.Context, stageName string, consecutiveProbes int) {
	if p == nil || p.service == nil {
		return
	}
	err := p.service.Publish(ctx, EventWorkerReset, Payload{
		"stage":  stageName,
		"probes": consecutiveProbes,
	})
	if err != nil {
		p.logger.Debug("reset notification failed", logging.Error(err))
	}
}

var _ pipeline.Notifier = (*PipelineNotifier)(nil)
