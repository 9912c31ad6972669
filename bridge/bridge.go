// Package bridge runs the loop that joins a terminal to a serial channel.
//
// The loop is single-threaded. It keeps one read permanently outstanding on
// the channel so inbound data is never left waiting, and submits at most one
// write at a time, taking new terminal input only when the previous write
// has completed. Outbound traffic is therefore paced by the device while the
// inbound path stays saturated.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	serial "github.com/luhtfiimanal/serialterm"
)

const (
	// DefaultWaitTimeout bounds a single wait on the channel.
	DefaultWaitTimeout = time.Second
	// DefaultBufferSize is the size of each direction's buffer.
	DefaultBufferSize = 4096
)

// Channel is the serial side of the bridge. *serial.Port implements it.
type Channel interface {
	SubmitRead(buf []byte) error
	SubmitWrite(buf []byte) error
	PollRead() serial.Result
	PollWrite() serial.Result
	// Wait blocks until there may be progress on an outstanding operation,
	// inputFd (if >= 0) is readable, or timeout elapses.
	Wait(timeout time.Duration, inputFd int) error
}

// Input yields bytes typed at the terminal. Poll must not block; it returns
// 0 when nothing is available and ErrQuit when the session should end.
// An Input that also has an Fd() int method is included in the loop's wait
// so keystrokes wake it immediately.
type Input interface {
	Poll(dst []byte) (int, error)
}

// Output receives bytes for the terminal.
type Output interface {
	WriteRaw(p []byte) error
}

// Config tunes the loop.
type Config struct {
	LocalEcho   bool
	DebugInput  bool
	WaitTimeout time.Duration
	BufferSize  int
	Logger      logrus.FieldLogger // Optional logger (nil = no-op logger)
}

// Stats counts bytes moved by the loop.
type Stats struct {
	Received  int64 // reported by completed reads
	Delivered int64 // handed to the output
	Submitted int64 // submitted as writes
	Written   int64 // reported by completed writes
	Reads     int   // reads armed
	Writes    int   // writes submitted
}

// Loop is the bridge state machine.
type Loop struct {
	ch      Channel
	in      Input
	out     Output
	cfg     Config
	log     logrus.FieldLogger
	inputFd int

	read  direction
	write direction
	rbuf  []byte
	wbuf  []byte
	hex   []byte
	stats Stats
}

// New builds a loop. The read buffer and the write buffer are allocated
// here and owned by the loop and the channel in turn.
func New(ch Channel, in Input, out Output, cfg Config) *Loop {
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	inputFd := -1
	if f, ok := in.(interface{ Fd() int }); ok {
		inputFd = f.Fd()
	}
	return &Loop{
		ch:      ch,
		in:      in,
		out:     out,
		cfg:     cfg,
		log:     log,
		inputFd: inputFd,
		read:    direction{name: "read"},
		write:   direction{name: "write"},
		rbuf:    make([]byte, cfg.BufferSize),
		wbuf:    make([]byte, cfg.BufferSize),
	}
}

// Stats returns the counters accumulated so far.
func (l *Loop) Stats() Stats { return l.stats }

// Run arms the first read and iterates until the input reports ErrQuit, a
// fatal error occurs, or ctx is done. It returns ErrQuit, ctx.Err(), a
// *DeviceError or a *ConsoleError. Run does not restore anything; the
// caller owns teardown.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.armRead(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.step(); err != nil {
			if errors.Is(err, ErrQuit) {
				l.log.WithFields(l.fields()).Debug("quit requested")
			}
			return err
		}
	}
}

func (l *Loop) step() error {
	fd := -1
	if l.write.idle() {
		fd = l.inputFd
	}
	if err := l.ch.Wait(l.cfg.WaitTimeout, fd); err != nil {
		return &DeviceError{Op: "wait", Err: err}
	}
	if err := l.drainRead(); err != nil {
		return err
	}
	if err := l.drainWrite(); err != nil {
		return err
	}
	if l.write.idle() {
		return l.feedWrite()
	}
	return nil
}

func (l *Loop) armRead() error {
	if err := l.read.arm(len(l.rbuf)); err != nil {
		return &DeviceError{Op: "read", Err: err}
	}
	if err := l.ch.SubmitRead(l.rbuf); err != nil {
		return &DeviceError{Op: "read", Err: err}
	}
	l.stats.Reads++
	return nil
}

func (l *Loop) drainRead() error {
	res := l.ch.PollRead()
	switch res.State {
	case serial.Pending:
		return nil
	case serial.Failed:
		return &DeviceError{Op: "read", Err: res.Err}
	case serial.Idle:
		return &DeviceError{Op: "read", Err: errNotOutstanding}
	}

	l.read.settle()
	if res.N > 0 {
		l.stats.Received += int64(res.N)
		if err := l.out.WriteRaw(l.rbuf[:res.N]); err != nil {
			return &ConsoleError{Op: "write", Err: err}
		}
		l.stats.Delivered += int64(res.N)
	}
	// keep the inbound path saturated
	return l.armRead()
}

func (l *Loop) drainWrite() error {
	if l.write.idle() {
		return nil
	}
	res := l.ch.PollWrite()
	switch res.State {
	case serial.Pending:
		return nil
	case serial.Failed:
		return &DeviceError{Op: "write", Err: res.Err}
	case serial.Idle:
		return &DeviceError{Op: "write", Err: errNotOutstanding}
	}
	// *serial.Port completes only whole writes; other Channels may not
	if res.N != l.write.size {
		l.log.WithFields(logrus.Fields{"submitted": l.write.size, "written": res.N}).Warn("device accepted fewer bytes than submitted")
	}
	l.write.settle()
	l.stats.Written += int64(res.N)
	return nil
}

func (l *Loop) feedWrite() error {
	n, err := l.in.Poll(l.wbuf)
	if errors.Is(err, ErrQuit) {
		return ErrQuit
	}
	if err != nil {
		return &ConsoleError{Op: "input", Err: err}
	}
	if n == 0 {
		return nil
	}
	if n > len(l.wbuf) {
		return &ConsoleError{Op: "input", Err: fmt.Errorf("input reported %d bytes for a %d byte buffer", n, len(l.wbuf))}
	}
	p := l.wbuf[:n]

	if l.cfg.DebugInput {
		l.hex = appendHex(l.hex[:0], p)
		if err := l.out.WriteRaw(l.hex); err != nil {
			return &ConsoleError{Op: "write", Err: err}
		}
	}
	if l.cfg.LocalEcho {
		if err := l.out.WriteRaw(p); err != nil {
			return &ConsoleError{Op: "echo", Err: err}
		}
	}

	if err := l.write.arm(n); err != nil {
		return &DeviceError{Op: "write", Err: err}
	}
	if err := l.ch.SubmitWrite(p); err != nil {
		return &DeviceError{Op: "write", Err: err}
	}
	l.stats.Submitted += int64(n)
	l.stats.Writes++
	return nil
}

func (l *Loop) fields() logrus.Fields {
	return logrus.Fields{
		"received":  l.stats.Received,
		"delivered": l.stats.Delivered,
		"submitted": l.stats.Submitted,
		"written":   l.stats.Written,
	}
}

func appendHex(dst, p []byte) []byte {
	for _, b := range p {
		dst = fmt.Appendf(dst, "[%02X]", b)
	}
	return dst
}
