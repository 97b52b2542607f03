package broadcast

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("broadcast radio disabled")

// Disabled is a Radio that never comes up.
type Disabled struct{}

// Start implements Radio.
func (Disabled) Start(context.Context) error { return ErrDisabled }

// Begin implements Radio.
func (Disabled) Begin() error { return ErrDisabled }

// Write implements Radio.
func (Disabled) Write([]byte) (int, error) { return 0, ErrDisabled }

// End implements Radio.
func (Disabled) End() error { return ErrDisabled }
