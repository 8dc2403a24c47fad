package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/pinehappi/argon/internal/status"
)

// messages is the user-facing text of every status code
var messages = map[status.Code]string{
	status.CodeStarted:          "Argon is now running!",
	status.CodeAlreadyRunning:   "Argon is already running!",
	status.CodeStopped:          "Argon stopped!",
	status.CodeNotRunning:       "Argon is not running!",
	status.CodeUpdated:          "Successfully updated class database",
	status.CodeAlreadyCurrent:   "Class database is already up to date!",
	status.CodeBusy:             "Please wait database is updating!",
	status.CodeNoWorkspace:      "Please open workspace!",
	status.CodeGenericError:     "Something went wrong!",
	status.CodeConnectionFailed: "Could not connect to Roblox servers!",
}

// Message returns the text shown for code
func Message(code status.Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[status.CodeGenericError]
}

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#98BB6C"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9E3B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5D62")).Bold(true)
)

func styleFor(severity status.Severity) lipgloss.Style {
	switch severity {
	case status.SeverityWarning:
		return warningStyle
	case status.SeverityError:
		return errorStyle
	default:
		return infoStyle
	}
}

// terminalNotifier prints one styled line per status code
type terminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

var _ status.Notifier = (*terminalNotifier)(nil)

// newTerminalNotifier writes notifications to out
func newTerminalNotifier(out io.Writer) *terminalNotifier {
	return &terminalNotifier{out: out}
}

// Notify implements status.Notifier
func (n *terminalNotifier) Notify(code status.Code) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.out, styleFor(code.Severity()).Render(Message(code)))
}
