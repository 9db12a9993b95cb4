package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"squeeze/internal/events"
	"squeeze/internal/logging"
	"squeeze/internal/metrics"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
	"squeeze/internal/worker"
)

// maxDemand caps outstanding demand per stage. Single-worker stages accept
// one item at a time, so demand beyond one is meaningless.
const maxDemand = 1

const inboxBuffer = 64

// stageWorker is what the dispatcher needs from a worker host.
type stageWorker interface {
	Probe(ctx context.Context) stage.Availability
	Submit(item *queue.Item, requestID string, onComplete worker.CompletionFunc)
	ForceReset()
}

type msgKind int

const (
	msgTick msgKind = iota
	msgDemand
	msgComplete
	msgPause
	msgResume
	msgManual
	msgNudge
	msgSnapshot
)

// message is the single envelope every dispatcher trigger arrives in. Timer
// ticks, demand, completions, and operator commands all funnel through the
// same handler so behavior does not depend on which trigger fired.
type message struct {
	kind   msgKind
	itemID int64
	err    error
	reply  chan StageSnapshot
}

// StageSnapshot is a point-in-time copy of one stage's dispatcher state.
type StageSnapshot struct {
	Stage                   string      `json:"stage"`
	Status                  StageStatus `json:"status"`
	Demand                  int         `json:"demand"`
	InFlightItemID          int64       `json:"in_flight_item_id,omitempty"`
	ManualQueueDepth        int         `json:"manual_queue_depth"`
	ConsecutiveUnresponsive int         `json:"consecutive_unresponsive"`
	LastItemID              int64       `json:"last_item_id,omitempty"`
	LastError               string      `json:"last_error,omitempty"`
}

// dispatcherHooks let the manager observe terminal outcomes without the
// dispatcher knowing about notifications or sibling stages.
type dispatcherHooks struct {
	nudgeNext func()
	onSuccess func(ctx context.Context, itemID int64, stageName string)
	onFailure func(ctx context.Context, itemID int64, stageName string, category queue.FailureCategory, message string)
	onReset   func(stageName string, consecutive int)
}

// dispatcher owns one StageState. It is a single-goroutine actor: all state
// below the inbox is touched only from the run loop, so there is no lock.
type dispatcher struct {
	policy         policy
	store          *queue.Store
	worker         stageWorker
	logger         *slog.Logger
	events         *events.Hub
	hooks          dispatcherHooks
	pollInterval   time.Duration
	resetThreshold int

	inbox chan message
	done  chan struct{}

	status             StageStatus
	demand             int
	manual             []int64
	inFlight           int64
	inFlightRequest    string
	inFlightSince      time.Time
	consecUnresponsive int
	lastItemID         int64
	lastError          string
}

func newDispatcher(p policy, store *queue.Store, w stageWorker, logger *slog.Logger, hub *events.Hub, pollInterval time.Duration, resetThreshold int) *dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &dispatcher{
		policy: p,
		store:  store,
		worker: w,
		logger: logger.With(
			logging.String(logging.FieldComponent, "dispatcher"),
			logging.String(logging.FieldStage, p.name),
		),
		events:         hub,
		pollInterval:   pollInterval,
		resetThreshold: resetThreshold,
		inbox:          make(chan message, inboxBuffer),
		done:           make(chan struct{}),
		status:         StatusStopped,
	}
}

// post delivers a message unless the loop has already exited.
func (d *dispatcher) post(msg message) {
	select {
	case d.inbox <- msg:
	case <-d.done:
	}
}

// completion adapts the worker callback into an inbox message. The worker
// invokes it from its own goroutine, so blocking on a full inbox is safe.
func (d *dispatcher) completion(itemID int64, err error) {
	d.post(message{kind: msgComplete, itemID: itemID, err: err})
}

func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	d.setStatus(StatusIdle)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.handle(ctx, message{kind: msgTick})
		case msg := <-d.inbox:
			d.handle(ctx, msg)
		}
	}
}

func (d *dispatcher) handle(ctx context.Context, msg message) {
	switch msg.kind {
	case msgTick, msgNudge:
		d.attemptDispatch(ctx)
	case msgDemand:
		if d.demand < maxDemand {
			d.demand++
		}
		d.attemptDispatch(ctx)
	case msgComplete:
		d.handleCompletion(ctx, msg.itemID, msg.err)
	case msgPause:
		d.handlePause()
	case msgResume:
		d.handleResume(ctx)
	case msgManual:
		d.handleManual(ctx, msg.itemID)
	case msgSnapshot:
		msg.reply <- d.currentSnapshot()
	}
}

// attemptDispatch releases at most one item: the status must permit work, a
// unit of demand must be outstanding, nothing may already be in flight, and
// the worker must answer the health probe with available.
func (d *dispatcher) attemptDispatch(ctx context.Context) {
	if d.status != StatusIdle && d.status != StatusRunning {
		return
	}
	if d.demand <= 0 || d.inFlight != 0 {
		return
	}

	availability := d.worker.Probe(ctx)
	metrics.RecordProbe(d.policy.name, availability.String())
	switch availability {
	case stage.Busy:
		// Busy means alive and making progress. It breaks an unresponsive
		// streak and never feeds the recovery counter.
		d.consecUnresponsive = 0
		return
	case stage.Unresponsive:
		d.consecUnresponsive++
		if d.resetThreshold > 0 && d.consecUnresponsive%d.resetThreshold == 0 {
			d.forceReset()
		}
		return
	}
	d.consecUnresponsive = 0

	item := d.nextCandidate(ctx)
	if item == nil {
		metrics.RecordDispatch(d.policy.name, "no_candidate")
		return
	}

	if d.status == StatusIdle {
		d.setStatus(StatusRunning)
	}
	d.setStatus(StatusProcessing)
	d.demand--
	d.inFlight = item.ID
	d.inFlightRequest = uuid.NewString()
	d.inFlightSince = time.Now()
	metrics.RecordDispatch(d.policy.name, "dispatched")

	d.logger.Info("stage started",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldCorrelationID, d.inFlightRequest),
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source", item.SourcePath),
	)
	d.worker.Submit(item, d.inFlightRequest, d.completion)
}

// nextCandidate pops the manual FIFO first, then falls back to the store's
// priority order. Entries that are no longer eligible are dropped; a claim
// lost to a concurrent writer moves on to the next candidate.
func (d *dispatcher) nextCandidate(ctx context.Context) *queue.Item {
	for len(d.manual) > 0 {
		id := d.manual[0]
		d.manual = d.manual[1:]

		item, err := d.store.ItemByID(ctx, id)
		if err != nil {
			d.logger.Warn("manual queue lookup failed",
				logging.Int64(logging.FieldItemID, id),
				logging.Error(err),
			)
			continue
		}
		if item == nil || item.Status != d.policy.source {
			d.logger.Debug("manual entry no longer eligible",
				logging.Int64(logging.FieldItemID, id),
			)
			continue
		}
		switch err := d.claim(ctx, item); {
		case err == nil:
			return item
		case errors.Is(err, services.ErrNotFound):
			continue
		default:
			return nil
		}
	}

	for {
		item, err := d.policy.fetch(ctx, d.store)
		if err != nil {
			d.logger.Error("queue fetch failed", logging.Error(err))
			return nil
		}
		if item == nil {
			return nil
		}
		switch err := d.claim(ctx, item); {
		case err == nil:
			return item
		case errors.Is(err, services.ErrNotFound):
			continue
		default:
			return nil
		}
	}
}

// claim moves the item into the stage's claimed status. The conditional
// update is the cross-process guard: ErrNotFound means another writer got
// there first and the candidate should be skipped.
func (d *dispatcher) claim(ctx context.Context, item *queue.Item) error {
	if d.policy.claim == "" {
		return nil
	}
	if err := d.store.UpdateStatus(ctx, item.ID, d.policy.source, d.policy.claim); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			d.logger.Debug("claim lost to concurrent writer",
				logging.Int64(logging.FieldItemID, item.ID),
			)
			metrics.RecordDispatch(d.policy.name, "claim_lost")
			return err
		}
		d.logger.Error("claim failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err),
		)
		return err
	}
	from := item.Status
	item.Status = d.policy.claim
	d.publishItemState(item.ID, from, d.policy.claim)
	return nil
}

func (d *dispatcher) handleCompletion(ctx context.Context, itemID int64, err error) {
	if d.inFlight == 0 || d.inFlight != itemID {
		// Completions are delivered at least once; repeats and strays for an
		// already-settled stage are no-ops.
		d.logger.Debug("ignoring stale completion",
			logging.Int64(logging.FieldItemID, itemID),
		)
		return
	}

	duration := time.Since(d.inFlightSince)
	requestID := d.inFlightRequest
	d.inFlight = 0
	d.inFlightRequest = ""
	metrics.ObserveStageDuration(d.policy.name, duration.Seconds())

	if err != nil {
		d.completeFailure(ctx, itemID, requestID, duration, err)
	} else {
		d.completeSuccess(ctx, itemID, requestID, duration)
	}

	if d.demand < maxDemand {
		d.demand++
	}

	backlog := d.eligibleBacklog(ctx)
	switch d.status {
	case StatusPausing:
		d.setStatus(StatusPaused)
	case StatusProcessing:
		if backlog > 0 {
			d.setStatus(StatusRunning)
		} else {
			d.setStatus(StatusIdle)
		}
	}

	d.events.Publish(events.QueueDepth(d.policy.name, string(d.policy.source), backlog))
	metrics.SetQueueDepth(string(d.policy.source), backlog)

	d.attemptDispatch(ctx)
}

func (d *dispatcher) completeSuccess(ctx context.Context, itemID int64, requestID string, duration time.Duration) {
	from := d.policy.claimedStatus()
	if err := d.store.UpdateStatus(ctx, itemID, from, d.policy.done); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			d.logger.Warn("item advanced outside the pipeline",
				logging.Int64(logging.FieldItemID, itemID),
			)
			return
		}
		d.logger.Error("completion transition failed",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Error(err),
		)
		d.lastError = err.Error()
		return
	}
	d.publishItemState(itemID, from, d.policy.done)
	d.lastItemID = itemID

	if resolved, err := d.store.ResolveFailuresFor(ctx, itemID, d.policy.name); err != nil {
		d.logger.Warn("failed to resolve ledger entries", logging.Error(err))
	} else if resolved > 0 {
		d.logger.Info("previous failures resolved",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Int64("resolved", resolved),
		)
	}

	d.logger.Info("stage completed",
		logging.Int64(logging.FieldItemID, itemID),
		logging.String(logging.FieldCorrelationID, requestID),
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", duration),
	)

	if d.hooks.onSuccess != nil {
		d.hooks.onSuccess(ctx, itemID, d.policy.name)
	}
	if d.hooks.nudgeNext != nil {
		d.hooks.nudgeNext()
	}
}

func (d *dispatcher) completeFailure(ctx context.Context, itemID int64, requestID string, duration time.Duration, failure error) {
	category := queue.ClassifyError(failure)
	message := failure.Error()

	failureContext := map[string]string{}
	if requestID != "" {
		failureContext["request_id"] = requestID
	}
	if command, output, ok := services.CommandDetail(failure); ok {
		failureContext["command"] = command
		failureContext["output"] = output
	}

	record := &queue.FailureRecord{
		ItemID:   itemID,
		Stage:    d.policy.name,
		Category: category,
		Message:  message,
		Context:  failureContext,
	}
	if err := d.store.RecordFailure(ctx, record); err != nil {
		d.logger.Error("failed to write failure ledger entry", logging.Error(err))
	}
	if err := d.store.SetFailed(ctx, itemID, message); err != nil {
		d.logger.Error("failed to mark item failed",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Error(err),
		)
	}

	d.publishItemState(itemID, d.policy.claimedStatus(), queue.StatusFailed)
	d.events.Publish(events.Failure(itemID, d.policy.name, string(category), message))
	metrics.RecordFailure(d.policy.name, string(category))
	d.lastItemID = itemID
	d.lastError = message

	logging.ErrorWithContext(d.logger, "stage failed", "stage_failure",
		logging.Int64(logging.FieldItemID, itemID),
		logging.String(logging.FieldCorrelationID, requestID),
		logging.String(logging.FieldErrorCode, string(category)),
		logging.Duration("stage_duration", duration),
		logging.Error(failure),
	)

	if d.hooks.onFailure != nil {
		d.hooks.onFailure(ctx, itemID, d.policy.name, category, message)
	}
}

func (d *dispatcher) handlePause() {
	switch d.status {
	case StatusIdle, StatusRunning:
		d.setStatus(StatusPaused)
		d.logger.Info("stage paused")
	case StatusProcessing:
		d.setStatus(StatusPausing)
		d.logger.Info("stage pausing after current item")
	case StatusPausing, StatusPaused:
		// Idempotent: repeated pause requests change nothing and emit
		// nothing.
	}
}

func (d *dispatcher) handleResume(ctx context.Context) {
	switch d.status {
	case StatusPaused, StatusIdle:
		d.setStatus(StatusRunning)
		d.logger.Info("stage resumed")
	case StatusRunning:
	default:
		// Resume while an item is in flight changes nothing; the machine has
		// no pausing to running edge.
		return
	}
	if d.demand < maxDemand {
		d.demand = maxDemand
	}
	d.attemptDispatch(ctx)
}

func (d *dispatcher) handleManual(ctx context.Context, itemID int64) {
	for _, queued := range d.manual {
		if queued == itemID {
			return
		}
	}
	d.manual = append(d.manual, itemID)
	d.logger.Info("item queued for priority dispatch",
		logging.Int64(logging.FieldItemID, itemID),
	)
	d.attemptDispatch(ctx)
}

func (d *dispatcher) forceReset() {
	logging.WarnWithContext(d.logger, "worker unresponsive, forcing reset", "worker_reset",
		logging.Int("consecutive_probes", d.consecUnresponsive),
	)
	d.worker.ForceReset()
	metrics.RecordWorkerReset(d.policy.name)
	if d.hooks.onReset != nil {
		d.hooks.onReset(d.policy.name, d.consecUnresponsive)
	}
}

func (d *dispatcher) eligibleBacklog(ctx context.Context) int {
	count, err := d.store.CountEligible(ctx, d.policy.source)
	if err != nil {
		d.logger.Warn("backlog count failed", logging.Error(err))
		count = 0
	}
	return count + len(d.manual)
}

func (d *dispatcher) setStatus(to StageStatus) {
	from := d.status
	if from == to {
		return
	}
	if !CanChange(from, to) {
		d.logger.Warn("stage status change suppressed",
			logging.String("from", string(from)),
			logging.String("to", string(to)),
		)
		return
	}
	d.status = to
	d.events.Publish(events.StageStatus(d.policy.name, string(from), string(to)))
	metrics.SetStageStatus(d.policy.name, string(to), stageStatusStrings)
	d.logger.Debug("stage status changed",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
}

func (d *dispatcher) publishItemState(itemID int64, from, to queue.Status) {
	d.events.Publish(events.ItemState(itemID, d.policy.name, string(from), string(to)))
	metrics.RecordTransition(string(from), string(to))
}

func (d *dispatcher) currentSnapshot() StageSnapshot {
	return StageSnapshot{
		Stage:                   d.policy.name,
		Status:                  d.status,
		Demand:                  d.demand,
		InFlightItemID:          d.inFlight,
		ManualQueueDepth:        len(d.manual),
		ConsecutiveUnresponsive: d.consecUnresponsive,
		LastItemID:              d.lastItemID,
		LastError:               d.lastError,
	}
}

// snapshot asks the run loop for its current state.
func (d *dispatcher) snapshot(ctx context.Context) (StageSnapshot, error) {
	reply := make(chan StageSnapshot, 1)
	select {
	case d.inbox <- message{kind: msgSnapshot, reply: reply}:
	case <-d.done:
		return StageSnapshot{Stage: d.policy.name, Status: StatusStopped}, nil
	case <-ctx.Done():
		return StageSnapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-d.done:
		return StageSnapshot{Stage: d.policy.name, Status: StatusStopped}, nil
	case <-ctx.Done():
		return StageSnapshot{}, ctx.Err()
	}
}
