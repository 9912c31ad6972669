// Package console is the terminal side of serialterm: it captures and
// restores the input tty's settings, turns raw tty input into key events and
// then into bytes for the device, and writes device output back verbatim.
package console

// Key identifies a non-character key decoded from an escape sequence.
type Key uint8

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyInsert
	KeyDelete
	KeyPageUp
	KeyPageDown
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Mods is the modifier state accompanying a key event.
type Mods uint8

const (
	ModShift Mods = 1 << iota
	ModAlt
	ModCtrl
	// ModFunction marks an event decoded from an escape sequence rather
	// than typed as a character.
	ModFunction
)

// KeyEvent is one keyboard record. Char is 0 for keys that do not produce
// a character.
type KeyEvent struct {
	Down bool
	Char rune
	Key  Key
	Mods Mods
}

// QuitKey together with Ctrl ends the session.
const QuitKey = KeyF10

// QuitSequence is how a VT terminal encodes Ctrl+F10.
var QuitSequence = []byte("\x1b[21;5~")

// IsQuit reports whether e is the quit chord, Ctrl+F10.
func (e KeyEvent) IsQuit() bool {
	return e.Down && e.Key == QuitKey && e.Mods&ModCtrl != 0
}
