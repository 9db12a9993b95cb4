package main

import (
	"context"
	"strings"

	"squeeze/internal/api"
	"squeeze/internal/ipc"
	"squeeze/internal/queue"
)

// queueAPI abstracts queue operations so commands behave identically over
// IPC and over direct store access.
type queueAPI interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.QueueItem, error)
	Describe(ctx context.Context, id int64) (*api.QueueItemResponse, error)
	Enqueue(ctx context.Context, path string) (api.QueueItem, bool, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	Failures(ctx context.Context, itemID int64) ([]api.FailureRecord, error)
	Failure(ctx context.Context, id int64) (*api.FailureRecord, error)
}

// withQueue dispatches fn to the daemon when it answers and to the queue
// database directly when it does not.
func (c *commandContext) withQueue(fn func(q queueAPI) error) error {
	return c.withStore(func(client *ipc.Client, store *queue.Store) error {
		if client != nil {
			return fn(&queueIPCAdapter{client: client})
		}
		return fn(&queueStoreAdapter{store: store, service: api.NewQueueService(store)})
	})
}

// --- IPC adapter ---

type queueIPCAdapter struct {
	client *ipc.Client
}

func (a *queueIPCAdapter) Stats(context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *queueIPCAdapter) List(_ context.Context, statuses []string) ([]api.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *queueIPCAdapter) Describe(_ context.Context, id int64) (*api.QueueItemResponse, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return &api.QueueItemResponse{Item: resp.Item, Results: resp.Results}, nil
}

func (a *queueIPCAdapter) Enqueue(_ context.Context, path string) (api.QueueItem, bool, error) {
	resp, err := a.client.Enqueue(path)
	if err != nil {
		return api.QueueItem{}, false, err
	}
	return resp.Item, resp.Created, nil
}

func (a *queueIPCAdapter) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.Requeue(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *queueIPCAdapter) ClearAll(context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *queueIPCAdapter) ClearCompleted(context.Context) (int64, error) {
	resp, err := a.client.QueueClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *queueIPCAdapter) ClearFailed(context.Context) (int64, error) {
	resp, err := a.client.QueueClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *queueIPCAdapter) Health(context.Context) (queue.HealthSummary, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.HealthSummary{
		Total:      resp.Total,
		Pending:    resp.Pending,
		Processing: resp.Processing,
		Failed:     resp.Failed,
		Completed:  resp.Completed,
	}, nil
}

func (a *queueIPCAdapter) Failures(_ context.Context, itemID int64) ([]api.FailureRecord, error) {
	resp, err := a.client.Failures(itemID)
	if err != nil {
		return nil, err
	}
	return resp.Failures, nil
}

func (a *queueIPCAdapter) Failure(_ context.Context, id int64) (*api.FailureRecord, error) {
	resp, err := a.client.FailureShow(id)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	record := resp.Failure
	return &record, nil
}

// isNotFoundError matches the daemon's lookup errors, which arrive as plain
// strings over the JSON-RPC boundary.
func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

// --- Store adapter ---

type queueStoreAdapter struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *queueStoreAdapter) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *queueStoreAdapter) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	var filters []queue.Status
	for _, s := range statuses {
		if parsed, ok := queue.ParseStatus(s); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(ctx, filters...)
}

func (a *queueStoreAdapter) Describe(ctx context.Context, id int64) (*api.QueueItemResponse, error) {
	return a.service.Describe(ctx, id)
}

func (a *queueStoreAdapter) Enqueue(ctx context.Context, path string) (api.QueueItem, bool, error) {
	item, created, err := a.store.NewItem(ctx, path, "")
	if err != nil {
		return api.QueueItem{}, false, err
	}
	return api.FromItem(item), created, nil
}

func (a *queueStoreAdapter) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.Requeue(ctx, ids...)
}

func (a *queueStoreAdapter) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *queueStoreAdapter) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *queueStoreAdapter) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *queueStoreAdapter) Health(ctx context.Context) (queue.HealthSummary, error) {
	return a.store.Health(ctx)
}

func (a *queueStoreAdapter) Failures(ctx context.Context, itemID int64) ([]api.FailureRecord, error) {
	return a.service.Failures(ctx, itemID)
}

func (a *queueStoreAdapter) Failure(ctx context.Context, id int64) (*api.FailureRecord, error) {
	return a.service.Failure(ctx, id)
}
