// Package config parses the serialterm command line and optional profile.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultWriteTimeout bounds each write to the device.
	DefaultWriteTimeout = 1000 * time.Millisecond
	// DefaultLogLevel keeps the session quiet unless something goes wrong.
	DefaultLogLevel = "warning"
)

// ErrHelp is returned by Parse when -h or --help was given.
var ErrHelp = flag.ErrHelp

// UsageError is a malformed command line. The caller prints it with the
// usage text and exits 1.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Options is the parsed command line. It is not modified after Parse.
type Options struct {
	Device         string
	LocalEcho      bool
	SystemCodePage bool
	ReplaceCR      bool
	DisableVT      bool
	DebugInput     bool
	WriteTimeout   time.Duration // 0 disables the timeout
	BaudRate       int           // 0 keeps the device setting
	ConfigFile     string
	LogLevel       string
	LogFile        string
	ListPorts      bool
}

// canonical names for flags registered under two spellings
var aliases = map[string]string{
	"l": "local-echo",
	"s": "system-codepage",
	"r": "replace-cr",
	"d": "disable-vt",
	"w": "write-timeout",
	"b": "baud",
	"c": "config",
	"h": "help",
}

// Parse parses args (without the program name). Option names are
// case-insensitive and may come before or after the device.
func Parse(args []string) (Options, error) {
	opts := Options{LogLevel: DefaultLogLevel}
	var writeMS int

	fs := flag.NewFlagSet("serialterm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	boolFlag(fs, &opts.LocalEcho, "l", "local-echo")
	boolFlag(fs, &opts.SystemCodePage, "s", "system-codepage")
	boolFlag(fs, &opts.ReplaceCR, "r", "replace-cr")
	boolFlag(fs, &opts.DisableVT, "d", "disable-vt")
	fs.BoolVar(&opts.DebugInput, "debug-input", false, "")
	fs.IntVar(&writeMS, "w", int(DefaultWriteTimeout/time.Millisecond), "")
	fs.IntVar(&writeMS, "write-timeout", int(DefaultWriteTimeout/time.Millisecond), "")
	fs.IntVar(&opts.BaudRate, "b", 0, "")
	fs.IntVar(&opts.BaudRate, "baud", 0, "")
	fs.StringVar(&opts.ConfigFile, "c", "", "")
	fs.StringVar(&opts.ConfigFile, "config", "", "")
	fs.StringVar(&opts.LogLevel, "log-level", DefaultLogLevel, "")
	fs.StringVar(&opts.LogFile, "log-file", "", "")
	fs.BoolVar(&opts.ListPorts, "list", false, "")

	args = normalize(args)
	if missingWriteTimeout(args) {
		return Options{}, &UsageError{Msg: "No write timeout specified"}
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return Options{}, ErrHelp
			}
			if name, ok := strings.CutPrefix(err.Error(), "flag provided but not defined: "); ok {
				return Options{}, &UsageError{Msg: "Unknown option: " + name}
			}
			return Options{}, &UsageError{Msg: err.Error()}
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := aliases[name]; ok {
			name = long
		}
		set[name] = true
	})
	if set["write-timeout"] {
		opts.WriteTimeout = time.Duration(writeMS) * time.Millisecond
	} else {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	if len(positional) > 1 {
		return Options{}, &UsageError{Msg: "Unexpected argument: " + positional[1]}
	}
	if len(positional) == 1 {
		opts.Device = positional[0]
	}

	if opts.ConfigFile != "" {
		p, err := LoadProfile(opts.ConfigFile)
		if err != nil {
			return Options{}, err
		}
		p.apply(&opts, set)
	}

	if opts.WriteTimeout < 0 {
		return Options{}, &UsageError{Msg: fmt.Sprintf("Invalid write timeout: %d", opts.WriteTimeout/time.Millisecond)}
	}
	if opts.BaudRate < 0 {
		return Options{}, &UsageError{Msg: fmt.Sprintf("Invalid baud rate: %d", opts.BaudRate)}
	}
	if _, err := logrus.ParseLevel(opts.LogLevel); err != nil {
		return Options{}, &UsageError{Msg: fmt.Sprintf("Invalid log level: %s", opts.LogLevel)}
	}
	if opts.Device == "" && !opts.ListPorts {
		return Options{}, &UsageError{Msg: "Please specify a serial port. e.g. serialterm /dev/ttyUSB0"}
	}
	return opts, nil
}

// missingWriteTimeout reports a -w that ends the command line or is
// followed by another option instead of a number.
func missingWriteTimeout(args []string) bool {
	for i, a := range args {
		switch a {
		case "-w", "--w", "-write-timeout", "--write-timeout":
		default:
			continue
		}
		if i == len(args)-1 {
			return true
		}
		next := args[i+1]
		if strings.HasPrefix(next, "-") {
			if _, err := strconv.Atoi(next); err != nil {
				return true
			}
		}
	}
	return false
}

func boolFlag(fs *flag.FlagSet, p *bool, short, long string) {
	fs.BoolVar(p, short, false, "")
	fs.BoolVar(p, long, false, "")
}

// normalize lower-cases option names, leaving values and the device alone.
func normalize(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if len(a) < 2 || a[0] != '-' {
			out[i] = a
			continue
		}
		name, value, hasValue := strings.Cut(a, "=")
		name = strings.ToLower(name)
		if hasValue {
			name += "=" + value
		}
		out[i] = name
	}
	return out
}

// Usage writes the command line summary to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, `Usage:
	serialterm <device> [options]

Options:
	-l, --local-echo          echo typed characters locally
	-s, --system-codepage     send input in the locale charset instead of UTF-8
	-r, --replace-cr          send LF for the Enter key instead of CR
	-d, --disable-vt          decode key sequences instead of passing them through
	    --debug-input         print the bytes sent to the device as [XX]
	-w, --write-timeout N     device write timeout in ms (default 1000, 0 = none)
	-b, --baud N              set the device baud rate (default: keep current)
	-c, --config FILE         read defaults from a YAML profile
	    --log-level LEVEL     panic, fatal, error, warning, info, debug or trace
	    --log-file FILE       write the log to FILE instead of stderr
	    --list                list serial ports and exit
	-h, --help                show this help

Press Ctrl-F10 to quit a session.
`)
}
