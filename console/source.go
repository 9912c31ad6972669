package console

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TTYSource reads key events from a terminal descriptor put in raw mode by
// Setup. Reads never block since Setup sets VMIN and VTIME to zero.
type TTYSource struct {
	fd  int
	dec *Decoder
	raw []byte
	evs []KeyEvent
}

// NewTTYSource returns a source reading fd through dec.
func NewTTYSource(fd int, dec *Decoder) *TTYSource {
	return &TTYSource{fd: fd, dec: dec}
}

// Fd returns the terminal descriptor, for use in a multiplexed wait.
func (s *TTYSource) Fd() int { return s.fd }

// ReadEvents reads what is queued on the terminal, at most as many bytes as
// fit dst once decoded.
func (s *TTYSource) ReadEvents(dst []KeyEvent) (int, error) {
	room := len(dst) - s.dec.Pending()
	if room <= 0 {
		return 0, nil
	}
	if cap(s.raw) < room {
		s.raw = make([]byte, room)
	}
	n, err := unix.Read(s.fd, s.raw[:room])
	switch {
	case err == unix.EINTR:
		return 0, nil
	case err != nil && err != unix.EAGAIN:
		return 0, fmt.Errorf("read terminal: %w", err)
	case err != nil || n <= 0:
		// nothing followed an unfinished key sequence
		s.evs = s.dec.Flush(s.evs[:0])
		return copy(dst, s.evs), nil
	}
	s.evs, err = s.dec.Decode(s.evs[:0], s.raw[:n])
	if err != nil {
		return 0, err
	}
	return copy(dst, s.evs), nil
}
