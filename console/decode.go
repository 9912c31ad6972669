package console

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxHeld is the longest unfinished key sequence kept back waiting for the
// rest of it. Anything longer is not a key and is emitted as characters.
const maxHeld = 32

const esc = 0x1b

var csiPrefix = []byte{esc, '['}

// Decoder turns raw bytes from the terminal into key events.
//
// Input is first decoded from the terminal's charset. In VT mode every
// resulting rune is one key-down event and escape sequences travel through
// as plain characters. Otherwise CSI and SS3 sequences are decoded into
// function-key events carrying ModFunction and no character. A sequence
// cut off at the end of the input is held until the next Decode completes
// it, or until Flush gives up on it.
type Decoder struct {
	vt     bool
	dec    transform.Transformer
	parser *ansi.Parser
	carry  []byte
	held   []byte
	src    []byte
	utf    []byte
}

// NewDecoder returns a decoder for input in enc (nil means UTF-8).
func NewDecoder(enc encoding.Encoding, vt bool) *Decoder {
	if enc == nil {
		enc = unicode.UTF8
	}
	d := &Decoder{vt: vt, dec: enc.NewDecoder()}
	if !vt {
		d.parser = ansi.NewParser()
	}
	return d
}

// Pending reports how many bytes are held back for the next call to
// Decode: an incomplete character or an unfinished key sequence.
func (d *Decoder) Pending() int { return len(d.carry) + len(d.held) }

// Decode appends the events encoded by p to dst. It never produces more
// events than Pending()+len(p).
func (d *Decoder) Decode(dst []KeyEvent, p []byte) ([]KeyEvent, error) {
	d.src = append(append(d.src[:0], d.carry...), p...)
	d.carry = d.carry[:0]

	need := len(d.held) + len(d.src)*utf8.UTFMax
	if cap(d.utf) < need {
		d.utf = make([]byte, need)
	}
	utf := d.utf[:need]
	start := copy(utf, d.held)
	d.held = d.held[:0]

	nDst, nSrc, err := d.dec.Transform(utf[start:], d.src, false)
	if err != nil && err != transform.ErrShortSrc {
		return dst, fmt.Errorf("decode input: %w", err)
	}
	d.carry = append(d.carry, d.src[nSrc:]...)

	b := utf[:start+nDst]
	for len(b) > 0 {
		if !d.vt && b[0] == esc {
			ev, n, st := d.sequence(b)
			switch st {
			case seqKey:
				dst = append(dst, ev)
				b = b[n:]
				continue
			case seqIncomplete:
				if len(b) <= maxHeld {
					d.held = append(d.held, b...)
					return dst, nil
				}
			}
		}
		dst = appendChar(dst, b)
		_, size := utf8.DecodeRune(b)
		b = b[size:]
	}
	return dst, nil
}

// Flush emits a held, unfinished sequence as plain characters. It is called
// when the terminal has nothing more to read, so a lone Esc key is not lost.
func (d *Decoder) Flush(dst []KeyEvent) []KeyEvent {
	b := d.held
	for len(b) > 0 {
		dst = appendChar(dst, b)
		_, size := utf8.DecodeRune(b)
		b = b[size:]
	}
	d.held = d.held[:0]
	return dst
}

func appendChar(dst []KeyEvent, b []byte) []KeyEvent {
	r, _ := utf8.DecodeRune(b)
	return append(dst, KeyEvent{Down: true, Char: r})
}

type seqStatus int

const (
	seqNone seqStatus = iota
	seqKey
	seqIncomplete
)

// sequence decodes the key sequence at the start of b, which begins with
// ESC. CSI sequences are split by the ansi parser. SS3 may arrive from it
// as the two-byte escape "ESC O", in which case the next byte is its final.
func (d *Decoder) sequence(b []byte) (KeyEvent, int, seqStatus) {
	if len(b) == 1 {
		return KeyEvent{}, 0, seqIncomplete
	}
	d.parser.Reset()
	var state byte // ansi.NormalState
	seq, _, n, state := ansi.DecodeSequence(b, state, d.parser)
	if state != 0 {
		return KeyEvent{}, 0, seqIncomplete
	}

	switch {
	case bytes.HasPrefix(seq, csiPrefix):
		return csiKey(ansi.Cmd(d.parser.Command()), d.parser.Params()), n, seqKey
	case len(seq) == 3 && seq[1] == 'O':
		return KeyEvent{Down: true, Key: finalKey(seq[2]), Mods: ModFunction}, n, seqKey
	case len(seq) == 2 && seq[1] == 'O':
		if n >= len(b) {
			return KeyEvent{}, 0, seqIncomplete
		}
		if f := b[n]; f >= 0x40 && f <= 0x7e {
			return KeyEvent{Down: true, Key: finalKey(f), Mods: ModFunction}, n + 1, seqKey
		}
	}
	return KeyEvent{}, 0, seqNone
}

// csiKey maps a CSI command to a key. Private sequences such as device
// attribute replies map to no key and are dropped with the other
// function-key events.
func csiKey(cmd ansi.Cmd, params ansi.Params) KeyEvent {
	ev := KeyEvent{Down: true, Mods: ModFunction}
	if cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return ev
	}
	if cmd.Final() == '~' {
		n, _, _ := params.Param(0, 0)
		ev.Key = tildeKey(n)
	} else {
		ev.Key = finalKey(cmd.Final())
	}
	// xterm modifier parameter: 1 + (shift | alt<<1 | ctrl<<2)
	if m, _, _ := params.Param(1, 1); m > 1 {
		ev.Mods |= Mods(m-1) & (ModShift | ModAlt | ModCtrl)
	}
	return ev
}

func finalKey(c byte) Key {
	switch c {
	case 'A':
		return KeyUp
	case 'B':
		return KeyDown
	case 'C':
		return KeyRight
	case 'D':
		return KeyLeft
	case 'H':
		return KeyHome
	case 'F':
		return KeyEnd
	case 'P':
		return KeyF1
	case 'Q':
		return KeyF2
	case 'R':
		return KeyF3
	case 'S':
		return KeyF4
	}
	return KeyNone
}

// xterm/vt220 "CSI n ~" key numbers
var tildeKeys = map[int]Key{
	1:  KeyHome,
	2:  KeyInsert,
	3:  KeyDelete,
	4:  KeyEnd,
	5:  KeyPageUp,
	6:  KeyPageDown,
	7:  KeyHome,
	8:  KeyEnd,
	11: KeyF1,
	12: KeyF2,
	13: KeyF3,
	14: KeyF4,
	15: KeyF5,
	17: KeyF6,
	18: KeyF7,
	19: KeyF8,
	20: KeyF9,
	21: KeyF10,
	23: KeyF11,
	24: KeyF12,
}

func tildeKey(n int) Key { return tildeKeys[n] }
