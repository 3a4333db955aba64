package tui

import (
	"github.com/charmbracelet/lipgloss"

	"buddy/internal/conversation"
)

const (
	headerHeight      = 2
	inputBorderHeight = 2
	statusLineHeight  = 1
	minTextareaHeight = 3
	maxTextareaHeight = 8
	minViewportHeight = 3
)

var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#06B6D4") // Cyan
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	successColor   = lipgloss.Color("#10B981") // Green
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F9FAFB")
	dimTextColor   = lipgloss.Color("#9CA3AF")
	fileColor      = lipgloss.Color("#F472B6") // Pink
	borderColor    = lipgloss.Color("#4B5563")

	titleStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(textColor).
			Bold(true)

	titleStatusStyle = lipgloss.NewStyle().
				Foreground(dimTextColor).
				Background(primaryColor)

	timestampStyle = lipgloss.NewStyle().Foreground(mutedColor)

	userLabelStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(textColor).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1).
				MarginLeft(10)

	assistantLabelStyle = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)

	assistantMessageStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1).
				MarginRight(10)

	systemMessageStyle  = lipgloss.NewStyle().Foreground(dimTextColor).Italic(true).PaddingLeft(2)
	fileMessageStyle    = lipgloss.NewStyle().Foreground(fileColor).PaddingLeft(2)
	errorMessageStyle   = lipgloss.NewStyle().Foreground(errorColor).PaddingLeft(2)
	warningMessageStyle = lipgloss.NewStyle().Foreground(accentColor).PaddingLeft(2)

	textAreaStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			PaddingLeft(1)

	noticeStyle      = lipgloss.NewStyle().Foreground(dimTextColor)
	noticeErrorStyle = lipgloss.NewStyle().Foreground(errorColor)

	confirmStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Foreground(accentColor).
			Padding(1, 2).
			MarginTop(1)

	helpStyle = lipgloss.NewStyle().Foreground(mutedColor)

	statusOKStyle  = lipgloss.NewStyle().Foreground(successColor).Background(primaryColor)
	statusErrStyle = lipgloss.NewStyle().Foreground(errorColor).Background(primaryColor)
)

// senderStyle picks the body style for the notice-like senders.
func senderStyle(s conversation.Sender) lipgloss.Style {
	switch s {
	case conversation.SenderFile:
		return fileMessageStyle
	case conversation.SenderError:
		return errorMessageStyle
	case conversation.SenderWarning:
		return warningMessageStyle
	default:
		return systemMessageStyle
	}
}
