package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"buddy/internal/conversation"
	"buddy/internal/providers"
)

// View renders the model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitle())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.confirmQuit:
		b.WriteString(confirmStyle.Render("Save chat history before exiting? (y/n, Esc to cancel)"))
		return b.String()
	case m.previewing:
		b.WriteString(helpStyle.Render("Esc or Enter to close"))
		return b.String()
	}

	b.WriteString(textAreaStyle.Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m *Model) renderTitle() string {
	st := m.sess.State()
	status := providers.StatusUnchecked
	name := string(st.Provider)
	for _, info := range m.sess.ProviderInfo() {
		if info.ID == st.Provider {
			status = info.Status
			name = info.DisplayName
		}
	}
	statusStyle := statusOKStyle
	if status.IsError() || !status.Usable() {
		statusStyle = statusErrStyle
	}

	left := titleStyle.Render(fmt.Sprintf(" Buddy │ %s │ %s ", m.sess.Store().Active(), name))
	parts := []string{statusStyle.Render(" " + string(status) + " ")}
	if n := len(m.sess.Attachments()); n > 0 {
		parts = append(parts, titleStatusStyle.Render(fmt.Sprintf(" │ %d file(s) ", n)))
	}
	if st.TTS {
		parts = append(parts, titleStatusStyle.Render(" │ speech "))
	}
	title := left + strings.Join(parts, "")
	if gap := m.width - lipgloss.Width(title); gap > 0 {
		title += titleStyle.Render(strings.Repeat(" ", gap))
	}
	return title
}

func (m *Model) renderStatusLine() string {
	if m.notice != "" {
		if m.noticeErr {
			return noticeErrorStyle.Render(m.notice)
		}
		return noticeStyle.Render(m.notice)
	}
	if n := m.sess.Pending(); n > 0 {
		return noticeStyle.Render(fmt.Sprintf("%s %d task(s) running", m.spinner.View(), n))
	}
	return helpStyle.Render("Enter send · /help commands · F2 voice · Ctrl+C quit")
}

func (m *Model) renderMessages() string {
	store := m.sess.Store()
	msgs := store.Messages(store.Active())
	if len(msgs) == 0 {
		return systemMessageStyle.Render("No messages yet. Say hello!")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg conversation.Message) string {
	ts := timestampStyle.Render(msg.Timestamp)
	switch msg.Sender {
	case conversation.SenderUser:
		body := userMessageStyle.Width(m.bubbleWidth(userMessageStyle)).Render(msg.Text)
		return lipgloss.JoinVertical(lipgloss.Right, userLabelStyle.Render("You")+" "+ts, body)
	case conversation.SenderAssistant:
		body := assistantMessageStyle.Width(m.bubbleWidth(assistantMessageStyle)).Render(m.renderMarkdown(msg.Text))
		return lipgloss.JoinVertical(lipgloss.Left, assistantLabelStyle.Render("Buddy")+" "+ts, body)
	default:
		return senderStyle(msg.Sender).Render(ts + " " + msg.Text)
	}
}

func (m *Model) bubbleWidth(s lipgloss.Style) int {
	w := m.width - s.GetHorizontalMargins() - s.GetHorizontalBorderSize()
	if w < 20 {
		w = 20
	}
	return w
}

// renderMarkdown renders assistant text, falling back to the raw text when
// the renderer is unavailable.
func (m *Model) renderMarkdown(text string) string {
	width := m.bubbleWidth(assistantMessageStyle) - assistantMessageStyle.GetHorizontalPadding()
	if m.markdown == nil || m.mdWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.logger.Debug().Err(err).Msg("markdown renderer unavailable")
			return text
		}
		m.markdown = r
		m.mdWidth = width
		clear(m.mdCache)
	}
	if out, ok := m.mdCache[text]; ok {
		return out
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")
	m.mdCache[text] = out
	return out
}
