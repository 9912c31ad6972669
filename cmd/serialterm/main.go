package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/luhtfiimanal/serialterm"
	"github.com/luhtfiimanal/serialterm/internal/config"
	"github.com/luhtfiimanal/serialterm/internal/session"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the exit status. The session
// itself always runs on the process's stdin and stdout.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := config.Parse(args)
	if errors.Is(err, config.ErrHelp) {
		config.Usage(stdout)
		return 0
	}
	var usageErr *config.UsageError
	if errors.As(err, &usageErr) {
		fmt.Fprintln(stderr, usageErr.Msg)
		config.Usage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log, closeLog, err := session.NewLogger(opts, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeLog()

	if opts.ListPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p)
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	err = session.Run(ctx, opts, session.Terminal{In: os.Stdin, Out: os.Stdout}, log)
	code := session.ExitCode(err)
	if code != 0 {
		// the terminal is restored by now
		fmt.Fprintf(stderr, "\n%v\n", err)
	}
	return code
}
