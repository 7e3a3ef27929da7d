package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/muurk/shellyscan/internal/iprange"
	"github.com/muurk/shellyscan/internal/scan"
	"github.com/muurk/shellyscan/internal/shelly"
	"github.com/muurk/shellyscan/internal/ui"
)

// Exit codes
const (
	exitError       = 1
	exitInvalid     = 22 // EINVAL, bad arguments or ranges
	exitInterrupted = 130
)

// errInvalidArgs marks argument errors so they exit with exitInvalid
var errInvalidArgs = errors.New("invalid argument")

// errReported wraps an error that has already been shown to the user
type errReported struct {
	err error
}

func (e *errReported) Error() string { return e.err.Error() }
func (e *errReported) Unwrap() error { return e.err }

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArgs, fmt.Sprintf(format, args...))
}

func exitCode(err error) int {
	var rangeErr *iprange.InvalidRangeError
	switch {
	case errors.As(err, &rangeErr), errors.Is(err, errInvalidArgs):
		return exitInvalid
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

// report prints err as an error box with troubleshooting tips and marks it
// as reported so main does not print it a second time.
func report(err error) error {
	if err == nil || silent {
		return err
	}
	var done *errReported
	if errors.As(err, &done) {
		return err
	}

	title, tips := describe(err)
	ui.NewPrinter(os.Stderr).PrintError(title, err, tips)
	return &errReported{err: err}
}

// describe picks a title and tips for the fatal errors a command can return
func describe(err error) (string, []string) {
	var (
		rangeErr *iprange.InvalidRangeError
		hostErr  *scan.HostContextError
		devErr   *shelly.DeviceError
	)

	switch {
	case errors.As(err, &rangeErr):
		tips := []string{
			"Ranges look like 192.168.1.0-192.168.1.255 and are separated by commas",
			"Each part of the start address must not exceed the same part of the end address",
		}
		if errors.Is(err, iprange.ErrLargeScan) {
			tips = append(tips, fmt.Sprintf("Pass -l to scan more than %d addresses or a whole /16", iprange.DefaultLargeScanThreshold))
		}
		return "Invalid address range", tips

	case errors.As(err, &hostErr):
		return "Could not determine the local network", []string{
			"Give the ranges to scan with -n",
			"Check that an IPv4 interface is up and has a default route",
		}

	case errors.As(err, &devErr):
		return shelly.GetShortErrorMessage(err), ui.TipsFromHint(shelly.GetTroubleshootingHint(err))

	case errors.Is(err, errInvalidArgs):
		return "Invalid arguments", []string{"Run with --help to see the valid flags"}

	default:
		return "Command failed", nil
	}
}
