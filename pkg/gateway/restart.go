package gateway

// Restarter ends the current process and starts it again.
type Restarter interface {
	Restart() error
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func() error

// Restart implements Restarter.
func (f RestartFunc) Restart() error {
	return f()
}
