package bridge

import (
	"errors"
	"fmt"
)

// ErrQuit is returned by an Input when the user asked to end the session.
// The loop returns it unwrapped.
var ErrQuit = errors.New("quit requested")

// DeviceError is a fatal failure of the serial channel.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ConsoleError is a fatal failure of the terminal side: reading input,
// transcoding it, or writing output.
type ConsoleError struct {
	Op  string
	Err error
}

func (e *ConsoleError) Error() string {
	return fmt.Sprintf("console %s: %v", e.Op, e.Err)
}

func (e *ConsoleError) Unwrap() error { return e.Err }
