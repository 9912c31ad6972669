package serial

import (
	"errors"
	"time"
)

var (
	// ErrReadOutstanding is returned by SubmitRead while a read is pending.
	ErrReadOutstanding = errors.New("serial: read already outstanding")
	// ErrWriteOutstanding is returned by SubmitWrite while a write is pending.
	ErrWriteOutstanding = errors.New("serial: write already outstanding")
	// ErrWriteTimeout is the failure of a write that did not finish before
	// the configured write timeout.
	ErrWriteTimeout = errors.New("serial: timed out writing to serial port")
	// ErrHangup is the failure of a read on a device that has hung up.
	ErrHangup = errors.New("serial: device hung up")
	// ErrClosed is returned when the port has been closed.
	ErrClosed = errors.New("serial: port closed")
)

// OpState is the state of one direction of the port.
type OpState int

const (
	// Idle means no operation has been submitted.
	Idle OpState = iota
	// Pending means the operation was submitted and has not finished yet.
	// It is not an error.
	Pending
	// Completed means the operation finished; Result.N holds the byte count.
	Completed
	// Failed means the operation finished with Result.Err.
	Failed
)

func (s OpState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is what PollRead and PollWrite report. A Completed or Failed result
// is reported exactly once, after which the direction is Idle again and the
// buffer belongs to the caller.
type Result struct {
	State OpState
	N     int
	Err   error
}

// op is one outstanding operation. buf is owned by the operation until its
// completion has been reported.
type op struct {
	state    OpState
	buf      []byte
	off      int
	deadline time.Time
}

func (o *op) pending() bool { return o.state == Pending }

func (o *op) complete(n int) Result {
	*o = op{}
	return Result{State: Completed, N: n}
}

func (o *op) fail(err error) Result {
	*o = op{}
	return Result{State: Failed, Err: err}
}

func (o *op) expired(now time.Time) bool {
	return !o.deadline.IsZero() && !now.Before(o.deadline)
}
