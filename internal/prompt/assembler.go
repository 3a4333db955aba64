package prompt

import (
	"strings"

	"buddy/internal/attachment"
	"buddy/internal/conversation"
)

// DefaultWindow is how many history messages go into a prompt.
const DefaultWindow = 5

// RecentSource is satisfied by *conversation.Store.
type RecentSource interface {
	Recent(topic string, n int) []conversation.Message
}

type Assembler struct {
	History RecentSource
	Window  int
}

// Build concatenates recent history, attached files and the new message.
// Call it before the new message is appended to history.
func (a Assembler) Build(topic, message string, atts []attachment.Attachment) string {
	window := a.Window
	if window <= 0 {
		window = DefaultWindow
	}

	var sections []string
	if a.History != nil {
		if recent := a.History.Recent(topic, window); len(recent) > 0 {
			var sb strings.Builder
			sb.WriteString("Conversation:")
			for _, m := range recent {
				sb.WriteString("\n")
				sb.WriteString(string(m.Sender))
				sb.WriteString(": ")
				sb.WriteString(m.Text)
			}
			sections = append(sections, sb.String())
		}
	}

	if len(atts) > 0 {
		var sb strings.Builder
		sb.WriteString("=== FILES ===")
		for _, att := range atts {
			sb.WriteString("\nFile: ")
			sb.WriteString(att.Name)
			sb.WriteString("\n")
			sb.WriteString(att.Text)
		}
		sb.WriteString("\n=== END FILES ===")
		sections = append(sections, sb.String())
	}

	sections = append(sections, message)
	return strings.Join(sections, "\n\n")
}
