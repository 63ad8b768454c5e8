// Package console formats short, human-readable status lines for the
// rch-xcode CLIs. It mirrors the ✓/ℹ/⚠/✗ message prefixes the ambient
// tooling in this codebase uses, trimmed to what a headless host/worker
// pair actually prints (no tables, no spinners, no list rendering).
package console

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorError   = lipgloss.AdaptiveColor{Light: "#D73737", Dark: "#FF5555"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#E67E22", Dark: "#FFB86C"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#27AE60", Dark: "#50FA7B"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#2980B9", Dark: "#8BE9FD"}

	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	styleWarning = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	styleSuccess = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	styleInfo    = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
)

// isTTY reports whether stderr is an interactive terminal. Styling is
// suppressed outside a TTY so piped/redirected output (CI logs, SSH
// forced-command stderr) stays plain text.
func isTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

func applyStyle(style lipgloss.Style, text string) string {
	if isTTY() {
		return style.Render(text)
	}
	return text
}

// FormatSuccessMessage formats a success message.
func FormatSuccessMessage(message string) string {
	return applyStyle(styleSuccess, "✓") + " " + message
}

// FormatInfoMessage formats an informational message.
func FormatInfoMessage(message string) string {
	return applyStyle(styleInfo, "ℹ") + " " + message
}

// FormatWarningMessage formats a warning message.
func FormatWarningMessage(message string) string {
	return applyStyle(styleWarning, "⚠") + " " + message
}

// FormatErrorMessage formats an error message, typically written to stderr.
func FormatErrorMessage(message string) string {
	return applyStyle(styleError, "✗") + " " + message
}

// FormatErrorWithSuggestions formats an error followed by indented
// actionable suggestions.
func FormatErrorWithSuggestions(message string, suggestions []string) string {
	var out strings.Builder
	out.WriteString(FormatErrorMessage(message))
	for _, s := range suggestions {
		out.WriteString("\n  - ")
		out.WriteString(s)
	}
	return out.String()
}

// FormatFileSize formats a byte count in a human-readable way, e.g. "1.2 MB".
func FormatFileSize(size int64) string {
	if size == 0 {
		return "0 B"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	if exp >= len(units) {
		exp = len(units) - 1
		div = int64(1) << (10 * (exp + 1))
	}
	return fmt.Sprintf("%.1f %s", float64(size)/float64(div), units[exp])
}

// FormatDuration formats a seconds count as a compact human string.
func FormatDuration(seconds float64) string {
	if seconds < 1 {
		return fmt.Sprintf("%dms", int(seconds*1000))
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds) / 60
	rem := int(seconds) % 60
	return fmt.Sprintf("%dm%ds", minutes, rem)
}
