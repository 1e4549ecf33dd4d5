package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/rss-relay/app/config"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/metrics"
)

const persistTimeout = 30 * time.Second

type State int32

const (
	StateNotStarted State = iota
	StateInitializing
	StateIdle
	StateChecking
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Ready reports whether initialization has completed.
func (s State) Ready() bool {
	return s == StateIdle || s == StateChecking
}

var _ InstanceStatus = (*Scheduler)(nil)

type SchedulerDeps struct {
	Manager  FeedChecker
	Notifier PostNotifier
	Store    feed.StateStore
	Batch    *BatchLogger
}

// Scheduler runs the check loop of one instance.
type Scheduler struct {
	instance *config.Instance
	manager  FeedChecker
	notifier PostNotifier
	store    feed.StateStore
	batch    *BatchLogger
	pending  *backlog
	interval time.Duration
	state    atomic.Int32
}

func NewScheduler(instance *config.Instance, deps SchedulerDeps) *Scheduler {
	interval := instance.CheckInterval()
	if interval <= 0 {
		interval = config.DefaultCheckIntervalMinutes * time.Minute
	}

	batch := deps.Batch
	if batch == nil {
		batch = NewBatchLogger(instance.ID)
	}

	return &Scheduler{
		instance: instance,
		manager:  deps.Manager,
		notifier: deps.Notifier,
		store:    deps.Store,
		batch:    batch,
		pending:  &backlog{},
		interval: interval,
	}
}

// Run initializes the feeds and checks them every interval until ctx is
// done. On cancellation the cursors are persisted when the instance asks
// for it.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	s.setState(StateInitializing)
	slog.Info("Starting scheduler", "instance", s.instance.ID, "interval", s.interval, "feeds", s.instance.FeedCount())

	if err := s.executeTask(ctx, NewInitializeTask(s.instance.ID, s.manager)); err != nil {
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}
		return err
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		s.setState(StateIdle)

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-timer.C:
		}

		s.setState(StateChecking)
		err := s.executeTask(ctx, NewCheckTask(s.instance.ID, s.manager, s.notifier, s.batch, s.pending))

		if err != nil && ctx.Err() != nil {
			s.shutdown()
			return nil
		}

		timer.Reset(s.interval)
	}
}

func (s *Scheduler) shutdown() {
	s.setState(StateStopping)

	if !s.instance.Persist() || s.store == nil {
		slog.Info("Scheduler stopped", "instance", s.instance.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.executeTask(ctx, NewPersistTask(s.instance.ID, s.manager, s.store, s.pending)); err == nil {
		slog.Info("Scheduler stopped", "instance", s.instance.ID)
	}
}

// executeTask runs task and logs its failure. A panic inside the task is
// reported as an error.
func (s *Scheduler) executeTask(ctx context.Context, task TaskInterface) (err error) {
	task.Start()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				slog.Debug("Task cancelled", "type", string(task.GetType()), "id", task.GetID(), "instance", task.GetInstance())
				return
			}
			slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "instance", task.GetInstance(), "duration", task.GetDuration(), "error", err)
		}
	}()

	return task.Execute(ctx)
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
	metrics.SetSchedulerState(s.instance.ID, int(state))
}

func (s *Scheduler) ID() string {
	return s.instance.ID
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) FeedCount() int {
	return s.instance.FeedCount()
}

func (s *Scheduler) FeedStates() []feed.FeedState {
	return s.manager.FeedStates()
}

func (s *Scheduler) LastBatch() (BatchSummary, bool) {
	return s.batch.LastSummary()
}
