// Package session wires a terminal, a serial port and the bridge loop into
// one interactive session and owns its teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	serial "github.com/luhtfiimanal/serialterm"
	"github.com/luhtfiimanal/serialterm/bridge"
	"github.com/luhtfiimanal/serialterm/console"
	"github.com/luhtfiimanal/serialterm/internal/config"
)

// Terminal is the user's side of the session.
type Terminal struct {
	In  *os.File
	Out *os.File
}

// Run connects tty to the device named in opts and bridges them until the
// quit gesture, a fatal error, or ctx is done. The terminal settings are
// restored before Run returns, whatever the outcome.
func Run(ctx context.Context, opts config.Options, tty Terminal, log logrus.FieldLogger) (err error) {
	if log == nil {
		log = discardLogger()
	}

	inEnc, outEnc, err := encodings(opts, log)
	if err != nil {
		return &bridge.ConsoleError{Op: "charset", Err: err}
	}

	state, err := console.Setup(tty.In, tty.Out)
	if err != nil {
		return &bridge.ConsoleError{Op: "setup", Err: err}
	}
	defer func() {
		if rerr := state.Restore(); rerr != nil {
			log.WithError(rerr).Error("terminal settings not restored")
			if err == nil || errors.Is(err, bridge.ErrQuit) {
				err = &bridge.ConsoleError{Op: "restore", Err: rerr}
			}
		}
	}()

	port, err := serial.Open(serial.Config{
		Device:          opts.Device,
		BaudRate:        opts.BaudRate,
		DefaultBaudRate: serial.DefaultBaudRate,
		WriteTimeout:    opts.WriteTimeout,
	})
	if err != nil {
		return &bridge.DeviceError{Op: "open", Err: err}
	}
	defer port.Close()

	log.WithFields(logrus.Fields{
		"device":        port.Name(),
		"baud":          opts.BaudRate,
		"write_timeout": opts.WriteTimeout,
		"disable_vt":    opts.DisableVT,
	}).Info("session opened")

	if _, err := fmt.Fprintf(tty.Out, "Connecting to %s. Press Ctrl-F10 to quit.\n", opts.Device); err != nil {
		return &bridge.ConsoleError{Op: "write", Err: err}
	}

	src := console.NewTTYSource(state.Fd(), console.NewDecoder(inEnc, !opts.DisableVT))
	in := console.NewReader(src, console.ReaderConfig{
		ReplaceCR: opts.ReplaceCR,
		DisableVT: opts.DisableVT,
		Encoding:  outEnc,
	})
	out := console.NewWriter(tty.Out, log)

	loop := bridge.New(port, in, out, bridge.Config{
		LocalEcho:  opts.LocalEcho,
		DebugInput: opts.DebugInput,
		Logger:     log,
	})

	stop := context.AfterFunc(ctx, port.Wake)
	defer stop()

	err = loop.Run(ctx)
	st := loop.Stats()
	log.WithFields(logrus.Fields{
		"received":  st.Received,
		"delivered": st.Delivered,
		"submitted": st.Submitted,
		"written":   st.Written,
	}).Info("session closed")
	return err
}

// encodings returns the charset the terminal types in and the one sent to
// the device.
func encodings(opts config.Options, log logrus.FieldLogger) (in, out encoding.Encoding, err error) {
	locale, err := console.LocaleEncoding()
	if err != nil {
		if opts.SystemCodePage {
			return nil, nil, err
		}
		log.WithError(err).Warn("unsupported locale charset, assuming UTF-8")
		locale = unicode.UTF8
	}
	if opts.SystemCodePage {
		return locale, locale, nil
	}
	return locale, unicode.UTF8, nil
}

// ExitCode maps the outcome of Run to the process exit status.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, bridge.ErrQuit) {
		return 0
	}
	return 1
}
