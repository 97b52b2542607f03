package framework

import "context"

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

// Prioritized is implemented by runnables with a priority level.
type Prioritized interface {
	PriorityLevel() int
}

// PriorityLevels is the total levels of priorities. Level 0 is the highest.
const PriorityLevels int = 16

// Predefined priority levels.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is the level of sampling tasks.
	PrLvSense = PrLvHigh
	// PrLvComm is the level of link and console tasks.
	PrLvComm = PrLvNormal
)
