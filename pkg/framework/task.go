package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Task runs Step periodically until the context is done.
//
// A phase-locked Task wakes at fixed offsets from its first run
// regardless of how long Step takes. Otherwise Period is a delay
// inserted after every Step.
type Task struct {
	TaskName    string
	Priority    int
	Period      time.Duration
	PhaseLocked bool
	Step        func(context.Context) error
}

// Name implements Named.
func (t *Task) Name() string {
	return t.TaskName
}

// PriorityLevel implements Prioritized.
func (t *Task) PriorityLevel() int {
	return t.Priority
}

// Run implements Runnable. Step errors are logged and never stop the task.
func (t *Task) Run(ctx context.Context) error {
	next := time.Now()
	for {
		if err := t.Step(ctx); err != nil && ctx.Err() == nil {
			glog.Errorf("task %s: %v", t.TaskName, err)
		}
		var delay time.Duration
		if t.PhaseLocked {
			next = next.Add(t.Period)
			delay = time.Until(next)
			if delay < -t.Period {
				glog.Warningf("task %s overran by %v, resync", t.TaskName, -delay)
				next, delay = time.Now(), 0
			}
		} else {
			delay = t.Period
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
