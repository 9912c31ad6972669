package console

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/charmap"

	"github.com/luhtfiimanal/serialterm/bridge"
)

type fakeSource struct {
	batches [][]KeyEvent
	err     error
}

func (s *fakeSource) ReadEvents(dst []KeyEvent) (int, error) {
	if len(s.batches) == 0 {
		return 0, s.err
	}
	n := copy(dst, s.batches[0])
	s.batches = s.batches[1:]
	return n, nil
}

func chars(s string) []KeyEvent {
	var evs []KeyEvent
	for _, r := range s {
		evs = append(evs, KeyEvent{Down: true, Char: r})
	}
	return evs
}

func poll(t *testing.T, r *Reader) (string, error) {
	t.Helper()
	buf := make([]byte, BufferSize)
	n, err := r.Poll(buf)
	return string(buf[:n]), err
}

func TestReader_ShortBuffer(t *testing.T) {
	r := NewReader(&fakeSource{}, ReaderConfig{})
	_, err := r.Poll(make([]byte, BufferSize-1))
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestReader_Empty(t *testing.T) {
	r := NewReader(&fakeSource{}, ReaderConfig{})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReader_ReplaceCR(t *testing.T) {
	r := NewReader(&fakeSource{batches: [][]KeyEvent{chars("a\rb")}}, ReaderConfig{ReplaceCR: true})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Equal(t, "a\nb", got)

	r = NewReader(&fakeSource{batches: [][]KeyEvent{chars("a\rb")}}, ReaderConfig{})
	got, err = poll(t, r)
	require.NoError(t, err)
	require.Equal(t, "a\rb", got)
}

func TestReader_FiltersEvents(t *testing.T) {
	batch := []KeyEvent{
		{Down: false, Char: 'x'},
		{Down: true, Mods: ModCtrl},
		{Down: true, Char: 0},
		{Down: true, Key: KeyUp, Mods: ModFunction},
		{Down: true, Char: 'y', Mods: ModShift},
	}
	r := NewReader(&fakeSource{batches: [][]KeyEvent{batch}}, ReaderConfig{DisableVT: true})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Equal(t, "\x00y", got)
}

func TestReader_QuitChord(t *testing.T) {
	quit := KeyEvent{Down: true, Key: KeyF10, Mods: ModCtrl | ModFunction}
	batch := append(chars("ab"), quit)

	r := NewReader(&fakeSource{batches: [][]KeyEvent{batch}}, ReaderConfig{DisableVT: true})
	_, err := poll(t, r)
	require.ErrorIs(t, err, bridge.ErrQuit)

	released := quit
	released.Down = false
	plain := KeyEvent{Down: true, Key: KeyF10, Mods: ModFunction}
	r = NewReader(&fakeSource{batches: [][]KeyEvent{{released, plain}}}, ReaderConfig{DisableVT: true})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReader_QuitSequence(t *testing.T) {
	r := NewReader(&fakeSource{batches: [][]KeyEvent{chars("x\x1b[21;5~")}}, ReaderConfig{})
	_, err := poll(t, r)
	require.ErrorIs(t, err, bridge.ErrQuit)

	// split over two batches
	r = NewReader(&fakeSource{batches: [][]KeyEvent{chars("ok\x1b[21"), chars(";5~")}}, ReaderConfig{})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Equal(t, "ok\x1b[21", got)
	_, err = poll(t, r)
	require.ErrorIs(t, err, bridge.ErrQuit)
}

func TestReader_SequenceIgnoredWithoutVT(t *testing.T) {
	r := NewReader(&fakeSource{batches: [][]KeyEvent{chars("\x1b[21;5~")}}, ReaderConfig{DisableVT: true})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Equal(t, "\x1b[21;5~", got)
}

func TestReader_Transcode(t *testing.T) {
	r := NewReader(&fakeSource{batches: [][]KeyEvent{chars("é€")}}, ReaderConfig{Encoding: charmap.ISO8859_1})
	got, err := poll(t, r)
	require.NoError(t, err)
	// € has no Latin-1 form and becomes the charset's substitute byte
	require.Equal(t, []byte{0xe9, 0x1a}, []byte(got))
}

func TestReader_FullBatchFits(t *testing.T) {
	batch := make([]KeyEvent, MaxBatch)
	for i := range batch {
		batch[i] = KeyEvent{Down: true, Char: '😀'}
	}
	r := NewReader(&fakeSource{batches: [][]KeyEvent{batch}}, ReaderConfig{})
	got, err := poll(t, r)
	require.NoError(t, err)
	require.Len(t, got, BufferSize)
}

func TestReader_SourceError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(&fakeSource{err: boom}, ReaderConfig{})
	_, err := poll(t, r)
	require.ErrorIs(t, err, boom)
}

func TestReader_Fd(t *testing.T) {
	require.Equal(t, -1, NewReader(&fakeSource{}, ReaderConfig{}).Fd())

	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	r := NewReader(NewTTYSource(p[0], NewDecoder(nil, true)), ReaderConfig{})
	require.Equal(t, p[0], r.Fd())
}
