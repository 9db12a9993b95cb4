package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"squeeze/internal/logging"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
)

// CompletionFunc receives the outcome of a submitted item. It is invoked on
// its own goroutine exactly once per accepted submission.
type CompletionFunc func(itemID int64, err error)

const ctrlBuffer = 8

type hostMsg interface{ isHostMsg() }

type probeMsg struct {
	reply chan stage.Availability
}

type submitMsg struct {
	item       *queue.Item
	requestID  string
	onComplete CompletionFunc
}

type resetMsg struct{}

func (probeMsg) isHostMsg()  {}
func (submitMsg) isHostMsg() {}
func (resetMsg) isHostMsg()  {}

// Host runs one stage handler as a single-worker actor. Submissions are
// asynchronous and execute on a child goroutine so the control loop keeps
// answering probes while work is in flight. A forced reset cancels the
// current attempt without tearing the loop down.
type Host struct {
	name         string
	handler      stage.Handler
	logger       *slog.Logger
	probeTimeout time.Duration

	ctrl    chan hostMsg
	started atomic.Bool
	done    chan struct{}
}

// NewHost wraps a stage handler for supervised execution.
func NewHost(name string, handler stage.Handler, logger *slog.Logger, probeTimeout time.Duration) *Host {
	if probeTimeout <= 0 {
		probeTimeout = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Host{
		name:         name,
		handler:      handler,
		logger:       logger.With(logging.String(logging.FieldComponent, "worker-"+name)),
		probeTimeout: probeTimeout,
		ctrl:         make(chan hostMsg, ctrlBuffer),
		done:         make(chan struct{}),
	}
}

// Name returns the stage name this host serves.
func (h *Host) Name() string {
	return h.name
}

// Start launches the control loop. Subsequent calls are no-ops.
func (h *Host) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go h.run(ctx)
}

// Wait blocks until the control loop has exited.
func (h *Host) Wait() {
	<-h.done
}

// Probe asks the control loop whether it can accept a submission. The answer
// is bounded by the probe timeout: a loop that cannot respond in time is
// reported unresponsive rather than blocking the caller.
func (h *Host) Probe(ctx context.Context) stage.Availability {
	reply := make(chan stage.Availability, 1)
	timer := time.NewTimer(h.probeTimeout)
	defer timer.Stop()

	select {
	case h.ctrl <- probeMsg{reply: reply}:
	case <-timer.C:
		return stage.Unresponsive
	case <-ctx.Done():
		return stage.Unresponsive
	}
	select {
	case availability := <-reply:
		return availability
	case <-timer.C:
		return stage.Unresponsive
	case <-ctx.Done():
		return stage.Unresponsive
	}
}

// Submit hands an item to the worker without blocking. If the control loop
// cannot take the message the completion callback fires immediately with an
// unavailable error so the dispatcher can re-arm.
func (h *Host) Submit(item *queue.Item, requestID string, onComplete CompletionFunc) {
	msg := submitMsg{item: item, requestID: requestID, onComplete: onComplete}
	select {
	case h.ctrl <- msg:
	default:
		if onComplete != nil {
			go onComplete(item.ID, services.Wrap(services.ErrUnavailable, h.name, "submit",
				"worker control channel full", nil))
		}
	}
}

// ForceReset abandons the in-flight attempt, if any. The cancelled attempt
// reports back through its completion callback as a process failure.
func (h *Host) ForceReset() {
	select {
	case h.ctrl <- resetMsg{}:
	default:
	}
}

type jobState struct {
	itemID     int64
	onComplete CompletionFunc
	cancel     context.CancelFunc
	reset      bool
}

func (h *Host) run(ctx context.Context) {
	defer close(h.done)

	var current *jobState
	var results chan error

	for {
		select {
		case <-ctx.Done():
			if current != nil {
				current.cancel()
			}
			return
		case err := <-results:
			job := current
			current = nil
			results = nil
			h.finish(job, err)
		case msg := <-h.ctrl:
			switch m := msg.(type) {
			case probeMsg:
				if current == nil {
					m.reply <- stage.Available
				} else {
					m.reply <- stage.Busy
				}
			case submitMsg:
				if current != nil {
					h.rejectBusy(m)
					continue
				}
				jobCtx, cancel := context.WithCancel(ctx)
				current = &jobState{itemID: m.item.ID, onComplete: m.onComplete, cancel: cancel}
				results = make(chan error, 1)
				go h.execute(jobCtx, m.item, m.requestID, results)
			case resetMsg:
				if current != nil && !current.reset {
					current.reset = true
					h.logger.Warn("forced reset of in-flight attempt",
						logging.Int64(logging.FieldItemID, current.itemID),
						logging.String(logging.FieldEventType, "worker_force_reset"),
					)
					current.cancel()
				}
			}
		}
	}
}

func (h *Host) finish(job *jobState, err error) {
	if job == nil {
		return
	}
	if job.reset && err != nil {
		err = services.Wrap(services.ErrProcessFailure, h.name, "force reset",
			"attempt abandoned by forced worker reset", err)
	}
	if job.onComplete == nil {
		return
	}
	go job.onComplete(job.itemID, err)
}

func (h *Host) rejectBusy(m submitMsg) {
	h.logger.Debug("submission rejected while busy",
		logging.Int64(logging.FieldItemID, m.item.ID),
	)
	if m.onComplete != nil {
		go m.onComplete(m.item.ID, services.Wrap(services.ErrUnavailable, h.name, "submit",
			"worker already has a job", nil))
	}
}

func (h *Host) execute(ctx context.Context, item *queue.Item, requestID string, results chan<- error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("worker panic recovered",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			results <- services.Wrap(services.ErrProcessFailure, h.name, "execute",
				fmt.Sprintf("worker panic: %v", r), nil)
		}
	}()

	ctx = services.WithStage(ctx, h.name)
	ctx = services.WithItemID(ctx, item.ID)
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}

	if err := h.handler.Prepare(ctx, item); err != nil {
		results <- err
		return
	}
	results <- h.handler.Execute(ctx, item)
}
