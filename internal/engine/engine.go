package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/killplan"
	"github.com/seantiz/reaper/internal/model"
	"github.com/seantiz/reaper/internal/reaper"
	"github.com/seantiz/reaper/internal/store"
)

// ErrInvalidJob is returned by Submit for jobs that fail validation.
var ErrInvalidJob = errors.New("invalid job")

// Dispatcher plans and enforces a job. *reaper.Dispatcher implements it.
type Dispatcher interface {
	Plan(job *model.Job) killplan.Plan
	Enforce(ctx context.Context, job *model.Job, plan killplan.Plan, done killplan.DoneFunc, obs reaper.Observer) (killplan.Result, error)
}

// Engine runs one enforcement goroutine per submitted job.
type Engine struct {
	store      store.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	broker     *EventBroker
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*atomic.Bool // reap ID → done flag
}

// NewEngine creates a new reap engine.
func NewEngine(s store.Store, d Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		store:      s,
		dispatcher: d,
		logger:     logger,
		broker:     NewEventBroker(),
		active:     make(map[string]*atomic.Bool),
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit validates job, stores a pending reap and starts enforcing it in
// the background. The goroutine works on a copy of job.
func (e *Engine) Submit(ctx context.Context, job *model.Job) (*model.Reap, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	r := &model.Reap{
		ID:        model.NewID(),
		RunID:     job.RunID,
		Backend:   string(job.Backend),
		Target:    job.ContainerID,
		PID:       job.PID,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateReap(ctx, r); err != nil {
		return nil, fmt.Errorf("create reap: %w", err)
	}

	done := &atomic.Bool{}
	e.mu.Lock()
	e.active[r.ID] = done
	e.mu.Unlock()

	jobCopy := *job
	e.wg.Go(func() {
		e.enforce(r.ID, &jobCopy, done)
	})

	return r, nil
}

// MarkDone reports that the workload of an in-flight reap exited on its
// own. It returns false if the reap is unknown or already finished.
func (e *Engine) MarkDone(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	done, ok := e.active[id]
	if !ok {
		return false
	}
	done.Store(true)
	return true
}

// Active returns the number of reaps being enforced.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until all in-flight reaps have reached a result.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// enforce runs the reap lifecycle: pending→running→result.
func (e *Engine) enforce(id string, job *model.Job, done *atomic.Bool) {
	activeReaps.Inc()
	defer activeReaps.Dec()
	defer e.broker.Close(id)
	defer func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	ctx := context.Background()
	logger := e.logger.With("reap_id", id, "backend", string(job.Backend))

	if err := e.store.UpdateReapStatus(ctx, id, model.StatusRunning); err != nil {
		logger.Error("failed to transition to running", "error", err)
		e.finishFailed(id, job.Backend, nil, 0, fmt.Sprintf("failed to start: %v", err))
		return
	}
	start := time.Now()

	plan := e.dispatcher.Plan(job)
	softAt, hardAt, cleanupAt := plan.SoftAt.UTC(), plan.HardAt.UTC(), plan.CleanupDeadline.UTC()
	if err := e.store.UpdateReap(ctx, &model.Reap{
		ID:              id,
		Status:          model.StatusRunning,
		SoftAt:          &softAt,
		HardAt:          &hardAt,
		CleanupDeadline: &cleanupAt,
	}); err != nil {
		logger.Error("failed to record schedule", "error", err)
	}

	rec := &recorder{engine: e, reapID: id, backend: string(job.Backend), logger: logger}
	marker := reaper.DoneMarker(job.StateDir)
	isDone := func() bool { return done.Load() || marker() }

	result, err := e.dispatcher.Enforce(ctx, job, plan, isDone, rec.observe)
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		e.finishFailed(id, job.Backend, &start, rec.commands, err.Error())
		return
	}

	if reaper.NeedsReapedMarker(result, job.StateDir) {
		if err := reaper.WriteReapedMarker(job.StateDir); err != nil {
			logger.Error("failed to write reaped marker", "error", err)
		}
	}

	elapsed := time.Since(start)
	durationMS := int(elapsed.Milliseconds())
	now := time.Now().UTC()

	final := &model.Reap{
		ID:         id,
		Status:     result.String(),
		Commands:   rec.commands,
		DurationMS: &durationMS,
		FinishedAt: &now,
	}
	if result == killplan.CleanupTimeout {
		final.Error = "cleanup did not confirm removal before the cleanup deadline"
	}
	if err := e.store.UpdateReap(ctx, final); err != nil {
		logger.Error("failed to record result", "error", err)
	}

	resultsTotal.WithLabelValues(string(job.Backend), result.String()).Inc()
	reapDuration.WithLabelValues(string(job.Backend)).Observe(elapsed.Seconds())
	logger.Info("reap finished", "result", result.String(), "commands", rec.commands, "duration_ms", durationMS)
}

// finishFailed marks a reap as failed with the given error message.
// startedAt may be nil if enforcement never started.
func (e *Engine) finishFailed(id string, b model.Backend, startedAt *time.Time, commands int, errMsg string) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}

	r := &model.Reap{
		ID:         id,
		Status:     model.StatusFailed,
		Error:      errMsg,
		Commands:   commands,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if err := e.store.UpdateReap(context.Background(), r); err != nil {
		e.logger.Error("failed to update failed reap", "reap_id", id, "error", err)
	}
	resultsTotal.WithLabelValues(string(b), model.StatusFailed).Inc()
}

// recorder turns dispatcher steps into persisted and published events.
// It is only used from the enforcing goroutine.
type recorder struct {
	engine   *Engine
	reapID   string
	backend  string
	logger   *slog.Logger
	seq      int
	commands int
}

func (r *recorder) observe(s reaper.Step) {
	if s.Executed {
		r.commands++
		commandsTotal.WithLabelValues(r.backend, s.Phase, stepOutcome(s)).Inc()
	}

	// The kill plan ignores the hard-kill result; cleanup and the next probe
	// decide the outcome. Surface the failure here instead.
	if s.Phase == backend.PhaseHard && s.Failed() {
		r.logger.Warn("hard kill command failed", "command", s.Command, "exit_status", s.ExitStatus, "timed_out", s.TimedOut)
	}

	ev := model.Event{
		ReapID:    r.reapID,
		Seq:       r.seq,
		Phase:     s.Phase,
		Line:      s.String(),
		CreatedAt: time.Now().UTC(),
	}
	r.seq++

	if err := r.engine.store.InsertEvent(context.Background(), &ev); err != nil {
		r.logger.Error("failed to persist event", "seq", ev.Seq, "error", err)
	}
	r.engine.broker.Publish(ev)
}

func stepOutcome(s reaper.Step) string {
	switch {
	case s.TimedOut:
		return outcomeTimedOut
	case s.Failed():
		return outcomeFailed
	default:
		return outcomeOK
	}
}
