package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/shellyscan/internal/scan"
)

// Scan phases shown in the step list
const (
	phaseHost = iota + 1
	phaseExpand
	phaseProbe
	phaseDone
)

type progressMsg scan.Progress

type scanDoneMsg struct {
	result *scan.Result
	err    error
}

// ScanProgressModel is a Bubble Tea model that shows a live scan. It reads
// snapshots from a scan.Progress channel and quits when the run function
// returns.
type ScanProgressModel struct {
	events <-chan scan.Progress
	// finished is closed once run returns
	finished chan struct{}
	run      func() (*scan.Result, error)
	cancel   context.CancelFunc
	steps    *Progress
	spinner  spinner.Model
	last     scan.Progress
	result   *scan.Result
	err      error
	done     bool
	stopped  bool
}

// NewScanProgressModel creates the model. run is called once from a Bubble
// Tea command; cancel is called when the user presses Ctrl+C and must make
// run return.
func NewScanProgressModel(label string, events <-chan scan.Progress, cancel context.CancelFunc, run func() (*scan.Result, error)) ScanProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	return ScanProgressModel{
		events:   events,
		finished: make(chan struct{}),
		run:      run,
		cancel:  cancel,
		steps:   NewProgress(label, "Resolving local network", "Expanding ranges", "Probing", "Done"),
		spinner: s,
	}
}

// waitForProgress reads the next snapshot. It gives up once the run has
// finished, since the session stops sending by then.
func waitForProgress(events <-chan scan.Progress, finished <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case p, ok := <-events:
			if !ok {
				return nil
			}
			return progressMsg(p)
		case <-finished:
			return nil
		}
	}
}

// runScan calls run and reports its result
func (m ScanProgressModel) runScan() tea.Msg {
	defer close(m.finished)
	result, err := m.run()
	return scanDoneMsg{result: result, err: err}
}

// Init implements tea.Model
func (m ScanProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForProgress(m.events, m.finished),
		m.runScan,
	)
}

// Update implements tea.Model
func (m ScanProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.apply(scan.Progress(msg))
		return m, waitForProgress(m.events, m.finished)

	case scanDoneMsg:
		m.result, m.err, m.done = msg.result, msg.err, true
		m.finish()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.steps.SetWidth(clampWidth(msg.Width))

	case tea.KeyMsg:
		// The run function still owns the scan; wait for it to return
		// the partial result.
		if msg.Type == tea.KeyCtrlC && !m.stopped {
			m.stopped = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}
	return m, nil
}

// apply moves the step list to the state in p
func (m *ScanProgressModel) apply(p scan.Progress) {
	switch p.State {
	case scan.StateResolvingHostContext:
		m.steps.StartStep(phaseHost, "")
	case scan.StateExpandingRanges:
		m.steps.StartStep(phaseExpand, "")
	case scan.StateRunning:
		if p.Total > 0 {
			m.steps.CompleteStep(phaseExpand, fmt.Sprintf("%d targets", p.Total))
			m.steps.Percent = float64(p.Done) / float64(p.Total)
		}
		m.steps.StartStep(phaseProbe, fmt.Sprintf("%d found", p.Matches))
		if p.Total > 0 || p.Done > 0 {
			m.last = p
		}
	}
}

// finish marks the final phase from the run result
func (m *ScanProgressModel) finish() {
	switch {
	case m.err != nil && m.result == nil:
		m.steps.FailStep(max(m.steps.Current, phaseHost), m.err.Error())
	case m.result != nil:
		m.steps.Percent = 1
		m.steps.StartStep(phaseDone, "")
		m.steps.CompleteStep(phaseProbe, fmt.Sprintf("%d found", len(m.result.Entries)))
		m.steps.CompleteStep(phaseDone, m.result.Stats.Elapsed.Round(time.Millisecond).String())
		if m.result.Host == nil {
			m.steps.UpdateStep(phaseHost, StepSkipped, "ranges given")
		}
	}
}

// View implements tea.Model
func (m ScanProgressModel) View() string {
	counter := fmt.Sprintf("%d/%d", m.last.Done, m.last.Total)
	if m.last.Last.IsValid() && !m.done {
		counter += "  " + m.last.Last.String()
	}

	label := m.steps.Label
	switch {
	case m.stopped && !m.done:
		label = m.spinner.View() + " Stopping, waiting for probes in flight..."
	case !m.done:
		label = m.spinner.View() + " " + label
	}

	return ProgressLabelStyle.Render(label) + "\n\n" +
		m.steps.renderProgressBar(counter) + "\n\n" +
		m.steps.renderStepList() + "\n"
}

// Result returns what the run function returned
func (m ScanProgressModel) Result() (*scan.Result, error) {
	return m.result, m.err
}

// RunScanProgress runs run while showing live progress on out and returns
// what run returned. Pressing Ctrl+C calls cancel.
func RunScanProgress(out io.Writer, label string, events <-chan scan.Progress, cancel context.CancelFunc, run func() (*scan.Result, error)) (*scan.Result, error) {
	model := NewScanProgressModel(label, events, cancel, run)
	p := tea.NewProgram(model, tea.WithOutput(out))

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress display failed: %w", err)
	}
	return final.(ScanProgressModel).Result()
}
