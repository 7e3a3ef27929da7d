// Package ui provides terminal UI components for the shellyscan CLI.
//
// This package uses Bubble Tea and Lipgloss to render terminal output for
// interactive use. Rendered scan results never go through this package; they
// are written by the render package so that stdout stays machine readable.
// Everything here is written to stderr or to an explicit writer.
//
// # Components
//
//   - Header: Command banner showing operation name and parameters
//   - Progress: Phase list showing where a scan is in its lifecycle
//   - ScanProgressModel: Live progress bar and spinner fed by scan.Progress
//   - Result: Success/failure boxes with styled information
//
// # Usage Pattern
//
//	ctx, cancel := context.WithCancel(ctx)
//	events := make(chan scan.Progress, 64)
//	session, _ := scan.NewSession(cfg, scan.WithProgress(events))
//	result, err := ui.RunScanProgress(os.Stderr, "Scanning", events, cancel, func() (*scan.Result, error) {
//	    return session.Run(ctx)
//	})
//
// # Logging Integration
//
// zap logging is silent unless SHELLYSCAN_LOG_LEVEL or --log-level is set,
// so the UI output is displayed cleanly by default.
package ui
