package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step represents a single step in a multi-step operation
type Step struct {
	Number  int        // Step number (1-based)
	Name    string     // Step description
	Status  StepStatus // Current status
	Message string     // Optional status message (e.g., "254 targets")
}

// Progress represents a progress display with bar and step list
type Progress struct {
	Label     string  // e.g., "Scanning 192.168.1.0-192.168.1.255"
	Steps     []Step  // List of steps
	Current   int     // Current step (1-based)
	Total     int     // Total steps
	Percent   float64 // Bar fill (0.0 - 1.0)
	Width     int     // Terminal width
	ShowBar   bool    // Whether to show progress bar
	ShowSteps bool    // Whether to show step list
	bar       progress.Model
}

// NewProgress creates a new progress display with named steps
func NewProgress(label string, names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name, Status: StepPending}
	}

	p := &Progress{
		Label:     label,
		Steps:     steps,
		Total:     len(names),
		ShowBar:   true,
		ShowSteps: true,
	}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := min(max(width-20, 20), 50) // Leave room for percentage and counter
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// UpdateStep updates a specific step's status and optional message
func (p *Progress) UpdateStep(stepNumber int, status StepStatus, message string) {
	if stepNumber < 1 || stepNumber > len(p.Steps) {
		return
	}
	idx := stepNumber - 1
	p.Steps[idx].Status = status
	p.Steps[idx].Message = message
	if status == StepRunning {
		p.Current = stepNumber
	}
}

// CompleteStep marks a step as complete
func (p *Progress) CompleteStep(stepNumber int, message string) {
	p.UpdateStep(stepNumber, StepComplete, message)
}

// FailStep marks a step as failed
func (p *Progress) FailStep(stepNumber int, message string) {
	p.UpdateStep(stepNumber, StepFailed, message)
}

// StartStep marks a step as running and completes every earlier step that
// is still pending or running.
func (p *Progress) StartStep(stepNumber int, message string) {
	for i := 1; i < stepNumber && i <= len(p.Steps); i++ {
		if s := p.Steps[i-1].Status; s == StepPending || s == StepRunning {
			p.UpdateStep(i, StepComplete, p.Steps[i-1].Message)
		}
	}
	p.UpdateStep(stepNumber, StepRunning, message)
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}
	if p.ShowBar {
		b.WriteString(p.renderProgressBar(""))
		b.WriteString("\n\n")
	}
	if p.ShowSteps {
		b.WriteString(p.renderStepList())
	}
	return b.String()
}

// renderProgressBar renders the bar with its percentage and a counter
func (p *Progress) renderProgressBar(counter string) string {
	if counter == "" {
		counter = fmt.Sprintf("[%d/%d]", p.Current, p.Total)
	}
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  %s", p.bar.ViewAs(p.Percent), p.Percent*100, counter))
}

func (p *Progress) renderStepList() string {
	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, p.renderStepLine(step))
	}
	return strings.Join(lines, "\n")
}

// renderStepLine renders a single step line
func (p *Progress) renderStepLine(step Step) string {
	var marker string
	var style lipgloss.Style

	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = "⊘", StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", step.Number, p.Total))
	b.WriteString(style.Render(step.Name))

	// Markers line up in one column
	const maxNameLen = 30
	b.WriteString(strings.Repeat(" ", max(maxNameLen-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
