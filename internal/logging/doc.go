// Package logging provides structured logging for shellyscan.
//
// It wraps a package-global zap logger with a few helpers for the events a
// scan produces: probe outcomes, device matches, scan start and completion,
// and the simulator's HTTP and WebSocket traffic.
//
// # Silent by Default
//
// Scan output goes to stdout and must stay machine readable, so the logger is
// a no-op unless a level is given, either to Initialize or through the
// SHELLYSCAN_LOG_LEVEL environment variable. Enabled logs go to stderr.
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	logging.LogProbe("192.168.1.20", "refused", 0, 3*time.Millisecond)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
