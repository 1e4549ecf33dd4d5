package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Supervisor runs every Scheduler in its own goroutine. A Scheduler that
// fails or panics is logged and stopped without touching the others.
type Supervisor struct {
	schedulers []*Scheduler
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewSupervisor(schedulers ...*Scheduler) *Supervisor {
	return &Supervisor{schedulers: schedulers}
}

func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, scheduler := range s.schedulers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.run(ctx, scheduler); err != nil {
				slog.Error("Scheduler terminated", "instance", scheduler.ID(), "error", err)
			}
		}()
	}
}

// Stop cancels every Scheduler and waits until all have persisted and
// returned.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, scheduler *Scheduler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			scheduler.setState(StateStopped)
			err = fmt.Errorf("scheduler panicked: %v", r)
			slog.Debug("Scheduler panic stack", "instance", scheduler.ID(), "stack", string(debug.Stack()))
		}
	}()
	return scheduler.Run(ctx)
}

func (s *Supervisor) Instances() []InstanceStatus {
	out := make([]InstanceStatus, 0, len(s.schedulers))
	for _, scheduler := range s.schedulers {
		out = append(out, scheduler)
	}
	return out
}

func (s *Supervisor) Instance(id string) (InstanceStatus, bool) {
	for _, scheduler := range s.schedulers {
		if scheduler.ID() == id {
			return scheduler, true
		}
	}
	return nil, false
}

// Ready reports whether every running Scheduler has finished initializing.
// Schedulers that already stopped are ignored.
func (s *Supervisor) Ready() bool {
	running := 0
	for _, scheduler := range s.schedulers {
		state := scheduler.State()
		if state == StateStopped {
			continue
		}
		if !state.Ready() {
			return false
		}
		running++
	}
	return running > 0
}
