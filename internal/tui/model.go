package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"buddy/internal/attachment"
	"buddy/internal/conversation"
	"buddy/internal/dispatch"
	"buddy/internal/providers"
	"buddy/internal/providers/registry"
	"buddy/internal/session"
)

// Session is the controller surface the interface drives.
type Session interface {
	State() session.State
	Store() *conversation.Store
	Attachments() []attachment.Attachment
	Events() <-chan dispatch.Event
	Pending() int
	ProviderInfo() []registry.Info

	Submit(text string)
	SelectProvider(id providers.ID) error
	TestConnection(id providers.ID)
	TestAll()
	Attach(paths []string) []attachment.Attachment
	ClearAttachments()
	PreviewAttachments() string
	CreateTopic(name string) error
	DeleteTopic(name string) error
	SwitchTopic(name string) error
	ClearChat()
	Export(path string) error
	Listen()
	SetTTS(on bool)
	Diagnostics() string
	Apply(ev dispatch.Event)
}

type eventMsg dispatch.Event

type eventsClosedMsg struct{}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	sess   Session
	logger zerolog.Logger

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer
	mdWidth  int
	mdCache  map[string]string

	width  int
	height int
	ready  bool

	// notice is a one-line status shown under the input; it is not part of
	// the conversation.
	notice    string
	noticeErr bool

	previewing  bool
	preview     string
	confirmQuit bool
	quitting    bool
	saveOnExit  bool
}

func New(sess Session, logger zerolog.Logger) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message... (/help for commands)"
	ta.Focus()
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(minTextareaHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		sess:     sess,
		logger:   logger,
		textarea: ta,
		spinner:  sp,
		mdCache:  map[string]string{},
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForEvent(m.sess.Events()))
}

// SaveOnExit reports whether the user asked to save history when quitting.
func (m *Model) SaveOnExit() bool { return m.saveOnExit }

func waitForEvent(ch <-chan dispatch.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}
