package serial

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultBaudRate is applied only when the device reports no speed at all
// (B0) and Config.BaudRate is zero.
const DefaultBaudRate = 115200

// Port is a serial port with at most one outstanding read and one
// outstanding write. It is driven from a single goroutine; only Wake and
// Close may be called concurrently with Wait.
type Port struct {
	fd        int
	name      string
	config    Config
	read      op
	write     op
	hangup    bool
	closed    atomic.Bool
	mu        sync.Mutex // serialises Wake and Close on the wake pipe
	pipeR     int        // self-pipe read fd
	pipeW     int        // self-pipe write fd
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device string
	// BaudRate is applied when > 0. Zero keeps the speed the operator
	// configured on the device.
	BaudRate int
	// DefaultBaudRate is applied when BaudRate is zero and the device has
	// no speed set. Zero means DefaultBaudRate.
	DefaultBaudRate int
	// WriteTimeout bounds how long a submitted write may stay pending.
	// Zero disables the timeout.
	WriteTimeout time.Duration
}

// Open opens a serial port using the provided Config and returns a Port.
// The port is left non-blocking and configured raw 8-N-1 with reads that
// return immediately with whatever is available.
func Open(cfg Config) (port *Port, err error) {
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	// prevent handle leaks
	defer func() {
		if err != nil {
			unix.Close(fd)
		}
	}()

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY | unix.INPCK
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// 8 data bits, no parity, one stop bit, no hardware handshake
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	baud, err := speedFor(cfg, termios)
	if err != nil {
		return nil, err
	}
	if baud != 0 {
		termios.Cflag &^= unix.CBAUD
		termios.Cflag |= baud
		termios.Ispeed = baud
		termios.Ospeed = baud
	}

	// VMIN=0, VTIME=0: reads return immediately with whatever is available
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Create self-pipe for Wake
	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		name:   cfg.Device,
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string { return p.name }

// Fd returns the device file descriptor.
func (p *Port) Fd() int { return p.fd }

// SubmitRead arms a read into buf. buf belongs to the port until PollRead
// reports Completed or Failed.
func (p *Port) SubmitRead(buf []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.read.pending() {
		return ErrReadOutstanding
	}
	p.read = op{state: Pending, buf: buf}
	return nil
}

// SubmitWrite arms a write of buf. buf belongs to the port until PollWrite
// reports Completed or Failed.
func (p *Port) SubmitWrite(buf []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.write.pending() {
		return ErrWriteOutstanding
	}
	p.write = op{state: Pending, buf: buf}
	if p.config.WriteTimeout > 0 {
		p.write.deadline = time.Now().Add(p.config.WriteTimeout)
	}
	return nil
}

// PollRead reports the state of the outstanding read without blocking.
func (p *Port) PollRead() Result {
	if !p.read.pending() {
		return Result{State: Idle}
	}
	n, err := unix.Read(p.fd, p.read.buf)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return Result{State: Pending}
	case err == unix.EIO && p.hangup:
		return p.read.fail(fmt.Errorf("read %s: %w", p.name, ErrHangup))
	case err != nil:
		return p.read.fail(fmt.Errorf("read %s: %w", p.name, err))
	case n > 0:
		return p.read.complete(n)
	case p.hangup:
		return p.read.fail(fmt.Errorf("read %s: %w", p.name, ErrHangup))
	}
	// VMIN=0: nothing available yet
	return Result{State: Pending}
}

// PollWrite reports the state of the outstanding write without blocking,
// pushing any bytes the device will accept now.
func (p *Port) PollWrite() Result {
	w := &p.write
	if !w.pending() {
		return Result{State: Idle}
	}
	for w.off < len(w.buf) {
		n, err := unix.Write(p.fd, w.buf[w.off:])
		if err == unix.EAGAIN || err == unix.EINTR {
			break
		}
		if err != nil {
			return w.fail(fmt.Errorf("write %s: %w", p.name, err))
		}
		if n <= 0 {
			break
		}
		w.off += n
	}
	if w.off == len(w.buf) {
		return w.complete(w.off)
	}
	if w.expired(time.Now()) {
		return w.fail(fmt.Errorf("write %s (%d of %d bytes): %w", p.name, w.off, len(w.buf), ErrWriteTimeout))
	}
	return Result{State: Pending}
}

// Wait blocks until the pending read or write may make progress, inputFd
// (if >= 0) becomes readable, Wake is called, or timeout elapses. A
// negative timeout waits indefinitely. The timeout is shortened so that a
// pending write's deadline is never overshot.
func (p *Port) Wait(timeout time.Duration, inputFd int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	var events int16
	if p.read.pending() {
		events |= unix.POLLIN
	}
	if p.write.pending() {
		events |= unix.POLLOUT
		if !p.write.deadline.IsZero() {
			left := time.Until(p.write.deadline)
			if left < 0 {
				left = 0
			}
			if timeout < 0 || left < timeout {
				timeout = left
			}
		}
	}

	pfd := []unix.PollFd{
		{Fd: int32(p.fd), Events: events},
		{Fd: int32(p.pipeR), Events: unix.POLLIN},
	}
	if inputFd >= 0 {
		pfd = append(pfd, unix.PollFd{Fd: int32(inputFd), Events: unix.POLLIN})
	}

	ms := -1
	if timeout >= 0 {
		// round up so a sub-millisecond remainder does not spin
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	_, err := unix.Poll(pfd, ms)
	if err == unix.EINTR {
		return nil
	}
	if err != nil {
		return fmt.Errorf("poll %s: %w", p.name, err)
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		p.hangup = true
	}
	if pfd[1].Revents&unix.POLLIN != 0 {
		// Drain pipe
		var b [16]byte
		for {
			if n, err := unix.Read(p.pipeR, b[:]); n <= 0 || err != nil {
				break
			}
		}
	}
	return nil
}

// Wake interrupts a blocked Wait. Safe to call from any goroutine, also
// after Close, when it does nothing.
func (p *Port) Wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return
	}
	unix.Write(p.pipeW, []byte{1})
}

// Close closes the serial port and its wake pipe. In-flight operations are
// abandoned. Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(p.fd)
	unix.Close(p.pipeR)
	unix.Close(p.pipeW)
	return err
}

func speedFor(cfg Config, termios *unix.Termios) (uint32, error) {
	if cfg.BaudRate > 0 {
		return baudToUnix(cfg.BaudRate)
	}
	if termios.Cflag&unix.CBAUD != unix.B0 {
		return 0, nil
	}
	def := cfg.DefaultBaudRate
	if def <= 0 {
		def = DefaultBaudRate
	}
	return baudToUnix(def)
}

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
}

func baudToUnix(baud int) (uint32, error) {
	b, ok := baudRates[baud]
	if !ok {
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
	return b, nil
}
