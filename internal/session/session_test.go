package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/luhtfiimanal/serialterm/bridge"
	"github.com/luhtfiimanal/serialterm/internal/config"
)

// collector drains a pty master in the background.
type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func collect(t *testing.T, f *os.File) *collector {
	t.Helper()
	c := &collector{}
	go func() {
		b := make([]byte, 256)
		for {
			n, err := f.Read(b)
			if n > 0 {
				c.mu.Lock()
				c.buf.Write(b[:n])
				c.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return c
}

func (c *collector) waitFor(t *testing.T, s string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		c.mu.Lock()
		got := c.buf.String()
		c.mu.Unlock()
		if strings.Contains(got, s) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %q, got %q", s, got)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func openPTY(t *testing.T) (ptmx, tty *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		tty.Close()
		ptmx.Close()
	})
	return ptmx, tty
}

func requireCanonical(t *testing.T, f *os.File) {
	t.Helper()
	tio, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.NotZero(t, tio.Lflag&unix.ICANON, "terminal left in raw mode")
	require.NotZero(t, tio.Lflag&unix.ECHO, "terminal left without echo")
}

func TestRun_EndToEnd(t *testing.T) {
	termMaster, termTTY := openPTY(t)
	devMaster, devTTY := openPTY(t)

	screen := collect(t, termMaster)
	device := collect(t, devMaster)

	opts := config.Options{
		Device:       devTTY.Name(),
		WriteTimeout: time.Second,
		ReplaceCR:    true,
		LogLevel:     config.DefaultLogLevel,
	}
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), opts, Terminal{In: termTTY, Out: termTTY}, nil)
	}()

	screen.waitFor(t, "Connecting to "+devTTY.Name()+". Press Ctrl-F10 to quit.")

	_, err := termMaster.Write([]byte("at\r"))
	require.NoError(t, err)
	device.waitFor(t, "at\n")

	_, err = devMaster.Write([]byte("OK"))
	require.NoError(t, err)
	screen.waitFor(t, "OK")

	_, err = termMaster.Write([]byte("\x1b[21;5~"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.ErrorIs(t, err, bridge.ErrQuit)
		require.Zero(t, ExitCode(err))
	case <-time.After(3 * time.Second):
		t.Fatal("session did not quit")
	}
	requireCanonical(t, termTTY)
}

func TestRun_DeviceOpenFailureRestores(t *testing.T) {
	_, termTTY := openPTY(t)

	opts := config.Options{Device: filepath.Join(t.TempDir(), "ttyMissing"), LogLevel: config.DefaultLogLevel}
	err := Run(context.Background(), opts, Terminal{In: termTTY, Out: termTTY}, nil)

	var devErr *bridge.DeviceError
	require.ErrorAs(t, err, &devErr)
	require.Equal(t, "open", devErr.Op)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, 1, ExitCode(err))
	requireCanonical(t, termTTY)
}

func TestRun_NotATerminal(t *testing.T) {
	_, devTTY := openPTY(t)
	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	require.NoError(t, err)
	defer f.Close()

	opts := config.Options{Device: devTTY.Name(), LogLevel: config.DefaultLogLevel}
	err = Run(context.Background(), opts, Terminal{In: f, Out: f}, nil)

	var conErr *bridge.ConsoleError
	require.ErrorAs(t, err, &conErr)
	require.Equal(t, "setup", conErr.Op)
}

func TestRun_ContextCancelRestores(t *testing.T) {
	termMaster, termTTY := openPTY(t)
	_, devTTY := openPTY(t)
	screen := collect(t, termMaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := config.Options{Device: devTTY.Name(), LogLevel: config.DefaultLogLevel}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, Terminal{In: termTTY, Out: termTTY}, nil)
	}()
	screen.waitFor(t, "Press Ctrl-F10 to quit.")
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, ExitCode(err))
	case <-time.After(3 * time.Second):
		t.Fatal("session ignored cancellation")
	}
	requireCanonical(t, termTTY)
}

func TestExitCode(t *testing.T) {
	require.Zero(t, ExitCode(nil))
	require.Zero(t, ExitCode(bridge.ErrQuit))
	require.Equal(t, 1, ExitCode(&bridge.DeviceError{Op: "write", Err: errors.New("timeout")}))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, closeLog, err := NewLogger(config.Options{LogLevel: "info"}, &buf)
	require.NoError(t, err)
	defer closeLog()
	log.Debug("hidden")
	log.Info("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	path := filepath.Join(t.TempDir(), "serialterm.log")
	log, closeLog, err = NewLogger(config.Options{LogLevel: "debug", LogFile: path}, &buf)
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.Debug("to file")
	require.NoError(t, closeLog())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "to file")
}
