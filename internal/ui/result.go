package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType        // Success, failure, or warning
	Title           string            // e.g., "Found 3 devices"
	Details         map[string]string // Key-value details to display
	Error           error             // Error (for failure results)
	Troubleshooting []string          // Troubleshooting tips (for failure results)
	Width           int               // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := max(r.Width, MinTerminalWidth)

	var (
		color  lipgloss.TerminalColor
		title  string
		titled lipgloss.Style
	)
	switch r.Type {
	case ResultFailure:
		color, titled = ErrorColor, ErrorTitleStyle
		title = fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)
	case ResultWarning:
		color, titled = WarningColor, lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
		title = fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title)
	default:
		color, titled = SuccessColor, SuccessTitleStyle
		title = fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title)
	}

	lines := []string{"", titled.Render(title), ""}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Details) > 0 {
		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			lines = append(lines, ResultKeyStyle.Render("   "+key+":")+" "+ResultValueStyle.Render(r.Details[key]))
		}
		lines = append(lines, "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width - 2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// renderTroubleshootingBox renders the inner troubleshooting box
func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	return TroubleshootingBoxStyle(max(width-4, 48)).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// TipsFromHint splits a multi-line hint in the "Title\nTroubleshooting:\n  • tip"
// layout into its bullet points. Lines without a bullet are dropped unless
// there are no bullets at all.
func TipsFromHint(hint string) []string {
	var tips, plain []string
	for _, line := range strings.Split(hint, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "•"):
			tips = append(tips, strings.TrimSpace(strings.TrimPrefix(line, "•")))
		case line != "" && line != "Troubleshooting:":
			plain = append(plain, line)
		}
	}
	if len(tips) == 0 {
		return plain
	}
	return tips
}
