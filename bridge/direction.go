package bridge

import (
	"errors"
	"fmt"
)

var (
	errOutstanding    = errors.New("operation already outstanding")
	errNotOutstanding = errors.New("channel reports no outstanding operation")
)

type dirState uint8

const (
	stateIdle dirState = iota
	statePending
)

// direction tracks one side of the channel. arm refuses a second operation
// while one is pending, so "one outstanding per direction" does not rely on
// the channel alone.
type direction struct {
	name  string
	state dirState
	size  int
}

func (d *direction) idle() bool { return d.state == stateIdle }

func (d *direction) arm(size int) error {
	if d.state == statePending {
		return fmt.Errorf("%s: %w", d.name, errOutstanding)
	}
	d.state = statePending
	d.size = size
	return nil
}

func (d *direction) settle() {
	d.state = stateIdle
	d.size = 0
}
