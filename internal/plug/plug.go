// Package plug abstracts the smart plug powering the monitored
// appliance. Drivers read the instantaneous load from the plug's
// energy meter and switch its relay on or off.
package plug

import (
	"context"
	"errors"
)

// ErrUnreachable reports a transient failure talking to the device.
// The sampling loop skips the tick and keeps going.
var ErrUnreachable = errors.New("plug unreachable")

// ErrDeviceFailed reports a permanent device failure. A read returning
// it shuts the sampling loop down gracefully.
var ErrDeviceFailed = errors.New("plug failed permanently")

// Plug is a smart plug with a built-in energy meter.
type Plug interface {
	// Name identifies the device in logs and the UI.
	Name() string

	// ReadPower returns the instantaneous load in watts.
	ReadPower(ctx context.Context) (float64, error)

	// TurnOn switches the relay on.
	TurnOn(ctx context.Context) error

	// TurnOff switches the relay off.
	TurnOff(ctx context.Context) error
}
