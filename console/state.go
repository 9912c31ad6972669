package console

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Setup when stdin or stdout is redirected.
var ErrNotTerminal = errors.New("not a terminal")

// State is a snapshot of the input terminal's settings taken by Setup.
type State struct {
	fd       int
	saved    unix.Termios
	restored atomic.Bool
}

// Setup checks that in and out are terminals, saves the settings of in and
// switches it to raw input: no line editing, no echo, no signal keys, no
// CR translation, and reads that return at once. Output processing is left
// as it was. On error the terminal is unchanged.
func Setup(in, out *os.File) (*State, error) {
	inFd := int(in.Fd())
	if !term.IsTerminal(inFd) {
		return nil, fmt.Errorf("%s: %w", in.Name(), ErrNotTerminal)
	}
	if !term.IsTerminal(int(out.Fd())) {
		return nil, fmt.Errorf("%s: %w", out.Name(), ErrNotTerminal)
	}

	t, err := unix.IoctlGetTermios(inFd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}
	s := &State{fd: inFd, saved: *t}

	raw := *t
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(inFd, unix.TCSETS, &raw); err != nil {
		s.Restore()
		return nil, fmt.Errorf("set termios: %w", err)
	}
	return s, nil
}

// Fd returns the input descriptor.
func (s *State) Fd() int { return s.fd }

// Restore puts back the saved settings. Only the first call has an effect,
// so it is safe from deferred teardown and signal paths alike.
func (s *State) Restore() error {
	if s == nil || !s.restored.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.IoctlSetTermios(s.fd, unix.TCSETS, &s.saved); err != nil {
		return fmt.Errorf("restore termios: %w", err)
	}
	return nil
}
