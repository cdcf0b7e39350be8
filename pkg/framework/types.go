package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// TimeSource provides the current time.
type TimeSource interface {
	Time() time.Time
}

// EventTrigger requests Event hooks on all devices of a Kernel.
type EventTrigger interface {
	TriggerEvent()
}
