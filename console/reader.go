package console

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/luhtfiimanal/serialterm/bridge"
)

const (
	// MaxBatch is the most key events handled by one Poll.
	MaxBatch = 256
	// BufferSize is the smallest destination Poll accepts: every event
	// yields at most one character and a character at most utf8.UTFMax
	// bytes in any supported encoding.
	BufferSize = MaxBatch * utf8.UTFMax
)

// ErrShortBuffer is returned by Poll for a destination under BufferSize.
var ErrShortBuffer = errors.New("console: buffer shorter than BufferSize")

// EventSource yields queued key events without blocking.
type EventSource interface {
	ReadEvents(dst []KeyEvent) (int, error)
}

// ReaderConfig selects the input translation.
type ReaderConfig struct {
	ReplaceCR bool
	DisableVT bool
	// Encoding of the bytes sent to the device; nil means UTF-8.
	Encoding encoding.Encoding
}

// Reader is the terminal input side of the bridge. It implements
// bridge.Input.
type Reader struct {
	src    EventSource
	cfg    ReaderConfig
	enc    *encoding.Encoder // nil for UTF-8
	events [MaxBatch]KeyEvent
	utf    []byte
	tail   []byte
	scan   []byte
}

// NewReader returns a Reader over src.
func NewReader(src EventSource, cfg ReaderConfig) *Reader {
	r := &Reader{
		src: src,
		cfg: cfg,
		utf: make([]byte, 0, BufferSize),
	}
	if cfg.Encoding != nil && cfg.Encoding != unicode.UTF8 {
		r.enc = encoding.ReplaceUnsupported(cfg.Encoding.NewEncoder())
	}
	return r
}

// Fd returns the descriptor of the underlying source, or -1.
func (r *Reader) Fd() int {
	if f, ok := r.src.(interface{ Fd() int }); ok {
		return f.Fd()
	}
	return -1
}

// Poll fills dst with the bytes typed since the last call and returns how
// many there are; 0 means nothing was typed. It returns bridge.ErrQuit when
// the quit chord is seen.
func (r *Reader) Poll(dst []byte) (int, error) {
	if len(dst) < BufferSize {
		return 0, ErrShortBuffer
	}
	n, err := r.src.ReadEvents(r.events[:])
	if err != nil {
		return 0, err
	}

	utf := r.utf[:0]
	for _, ev := range r.events[:n] {
		if !ev.Down {
			continue
		}
		if r.cfg.DisableVT && ev.IsQuit() {
			return 0, bridge.ErrQuit
		}
		c := ev.Char
		if r.cfg.ReplaceCR && c == '\r' {
			c = '\n'
		}
		// a modifier pressed on its own maps to NUL; a bare NUL is pasted data
		if c == 0 && ev.Mods != 0 {
			continue
		}
		utf = utf8.AppendRune(utf, c)
	}
	r.utf = utf
	if len(utf) == 0 {
		return 0, nil
	}

	out, err := r.transcode(dst, utf)
	if err != nil {
		return 0, fmt.Errorf("transcode input: %w", err)
	}
	if !r.cfg.DisableVT && r.quitSequence(dst[:out]) {
		return 0, bridge.ErrQuit
	}
	return out, nil
}

func (r *Reader) transcode(dst, utf []byte) (int, error) {
	if r.enc == nil {
		return copy(dst, utf), nil
	}
	r.enc.Reset()
	n, _, err := r.enc.Transform(dst, utf, true)
	return n, err
}

// quitSequence scans p, prefixed by the end of the previous batch, for the
// VT encoding of the quit chord.
func (r *Reader) quitSequence(p []byte) bool {
	r.scan = append(append(r.scan[:0], r.tail...), p...)
	found := bytes.Contains(r.scan, QuitSequence)
	keep := len(QuitSequence) - 1
	if len(r.scan) < keep {
		keep = len(r.scan)
	}
	r.tail = append(r.tail[:0], r.scan[len(r.scan)-keep:]...)
	return found
}
