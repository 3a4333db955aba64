package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"buddy/internal/dispatch"
)

// Update handles incoming messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmQuit {
			return m, m.updateConfirm(msg)
		}
		if m.previewing {
			switch msg.Type {
			case tea.KeyEsc, tea.KeyEnter, tea.KeyCtrlC:
				m.previewing = false
				m.preview = ""
				m.refresh(true)
				return m, nil
			}
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			m.confirmQuit = true
			return m, nil

		case tea.KeyEnter:
			input := m.textarea.Value()
			m.textarea.Reset()
			m.adjustTextareaHeight()
			cmd := m.handleInput(input)
			m.refresh(true)
			return m, cmd

		case tea.KeyF2:
			m.sess.Listen()
			m.refresh(true)
			return m, nil

		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyCtrlUp, tea.KeyCtrlDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalculateLayout()

	case eventMsg:
		ev := dispatch.Event(msg)
		m.sess.Apply(ev)
		if ev.Heard != "" && strings.TrimSpace(m.textarea.Value()) == "" {
			m.textarea.SetValue(ev.Heard)
			m.adjustTextareaHeight()
		}
		m.refresh(false)
		return m, waitForEvent(m.sess.Events())

	case eventsClosedMsg:
		m.logger.Debug().Msg("event stream closed")
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.adjustTextareaHeight()

	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateConfirm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "Y":
		m.saveOnExit = true
		m.quitting = true
		return tea.Quit
	case "n", "N", "ctrl+c":
		m.quitting = true
		return tea.Quit
	case "esc":
		m.confirmQuit = false
	}
	return nil
}

// handleInput routes a submitted line to a slash command or the session.
func (m *Model) handleInput(input string) tea.Cmd {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	m.setNotice("", false)
	if strings.HasPrefix(input, "/") {
		return m.runCommand(input)
	}
	m.sess.Submit(input)
	return nil
}

// refresh re-renders the transcript. follow forces the view to the newest
// message; otherwise it only follows when already at the bottom.
func (m *Model) refresh(follow bool) {
	if !m.ready {
		return
	}
	if m.previewing {
		m.viewport.SetContent(m.preview)
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if follow || wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) adjustTextareaHeight() {
	lines := strings.Count(m.textarea.Value(), "\n") + 1
	h := min(max(lines, minTextareaHeight), maxTextareaHeight)
	if h != m.textarea.Height() {
		m.textarea.SetHeight(h)
		m.recalculateLayout()
	}
}

func (m *Model) recalculateLayout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	vh := m.height - headerHeight - m.textarea.Height() - inputBorderHeight - statusLineHeight
	if vh < minViewportHeight {
		vh = minViewportHeight
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, vh)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vh
	}
	m.textarea.SetWidth(m.width - textAreaStyle.GetHorizontalPadding() - textAreaStyle.GetHorizontalBorderSize())
	m.refresh(true)
}
