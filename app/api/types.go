package api

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-relay/app/tasks"
)

// InstanceRegistry exposes the running schedulers.
type InstanceRegistry interface {
	Instances() []tasks.InstanceStatus
	Instance(id string) (tasks.InstanceStatus, bool)
	Ready() bool
}

var _ InstanceRegistry = (*tasks.Supervisor)(nil)

// ReferenceCounter reports how many reference posts are persisted.
type ReferenceCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	registry  InstanceRegistry
	store     ReferenceCounter
	version   string
	startedAt time.Time
}
