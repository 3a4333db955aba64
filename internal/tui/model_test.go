package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"buddy/internal/attachment"
	"buddy/internal/conversation"
	"buddy/internal/dispatch"
	"buddy/internal/providers"
	"buddy/internal/providers/registry"
	"buddy/internal/session"
)

type fakeSession struct {
	store    *conversation.Store
	state    session.State
	events   chan dispatch.Event
	calls    []string
	attached []string
	applied  []dispatch.Event
	exportTo string
	selectFn func(providers.ID) error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		store:  conversation.NewStore(),
		state:  session.State{Provider: providers.Gemini},
		events: make(chan dispatch.Event, 1),
	}
}

func (f *fakeSession) record(s string) { f.calls = append(f.calls, s) }

func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) Store() *conversation.Store { return f.store }
func (f *fakeSession) Attachments() []attachment.Attachment { return nil }
func (f *fakeSession) Events() <-chan dispatch.Event { return f.events }
func (f *fakeSession) Pending() int { return 0 }
func (f *fakeSession) PreviewAttachments() string { return "preview" }
func (f *fakeSession) DeleteTopic(name string) error { return f.store.DeleteTopic(name) }
func (f *fakeSession) SwitchTopic(name string) error { return f.store.SwitchActive(name) }
func (f *fakeSession) Submit(text string) { f.record("submit:" + text) }
func (f *fakeSession) TestConnection(id providers.ID) { f.record("test:" + string(id)) }
func (f *fakeSession) TestAll() { f.record("test-all") }
func (f *fakeSession) ClearAttachments() { f.record("clear-files") }
func (f *fakeSession) ClearChat() { f.record("clear") }
func (f *fakeSession) Listen() { f.record("listen") }
func (f *fakeSession) Diagnostics() string { f.record("diag"); return "" }
func (f *fakeSession) Apply(ev dispatch.Event) { f.applied = append(f.applied, ev) }
func (f *fakeSession) SetTTS(on bool) { f.state.TTS = on }
func (f *fakeSession) Attach(p []string) []attachment.Attachment {
	f.attached = p
	return nil
}

func (f *fakeSession) CreateTopic(name string) error {
	if err := f.store.CreateTopic(name); err != nil {
		return err
	}
	return f.store.SwitchActive(name)
}

func (f *fakeSession) ProviderInfo() []registry.Info {
	return []registry.Info{
		{ID: providers.Gemini, DisplayName: "Google Gemini", Status: providers.StatusConfigured},
		{ID: providers.Groq, DisplayName: "Groq Llama 3.3", Status: providers.StatusUnavailable},
	}
}

func (f *fakeSession) SelectProvider(id providers.ID) error {
	if f.selectFn != nil {
		return f.selectFn(id)
	}
	f.state.Provider = id
	return nil
}

func (f *fakeSession) Export(path string) error {
	f.exportTo = path
	return nil
}

func newModel(t *testing.T) (*Model, *fakeSession) {
	t.Helper()
	f := newFakeSession()
	m := New(f, zerolog.Nop())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	require.True(t, m.ready)
	return m, f
}

func submit(m *Model, text string) tea.Cmd {
	m.textarea.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, name, args string
	}{
		{"/help", "help", ""},
		{"/Model  groq ", "model", "groq"},
		{"/new Road Trip Ideas", "new", "Road Trip Ideas"},
		{"  /attach a.txt b.pdf", "attach", "a.txt b.pdf"},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.in)
		require.Equal(t, tt.name, name, tt.in)
		require.Equal(t, tt.args, args, tt.in)
	}
}

func TestPlainTextIsSubmitted(t *testing.T) {
	m, f := newModel(t)
	submit(m, "  hello there  ")
	require.Equal(t, []string{"submit:hello there"}, f.calls)
	require.Empty(t, m.textarea.Value())

	submit(m, "   ")
	require.Len(t, f.calls, 1)
}

func TestCommandsRouteToSession(t *testing.T) {
	m, f := newModel(t)

	submit(m, "/model groq")
	require.Equal(t, providers.Groq, f.state.Provider)

	submit(m, "/test")
	submit(m, "/test all")
	submit(m, "/test huggingface")
	submit(m, "/voice")
	submit(m, "/clear")
	submit(m, "/clearfiles")
	submit(m, "/diag")
	require.Equal(t, []string{"test:groq", "test-all", "test:huggingface", "listen", "clear", "clear-files", "diag"}, f.calls)

	submit(m, "/attach notes.txt paper.pdf")
	require.Equal(t, []string{"notes.txt", "paper.pdf"}, f.attached)

	submit(m, "/tts")
	require.True(t, f.state.TTS)
	submit(m, "/tts off")
	require.False(t, f.state.TTS)

	submit(m, "/export")
	require.Equal(t, defaultExportPath, f.exportTo)
	submit(m, "/export /tmp/out.txt")
	require.Equal(t, "/tmp/out.txt", f.exportTo)
	require.False(t, m.noticeErr)
}

func TestTopicCommands(t *testing.T) {
	m, f := newModel(t)

	submit(m, "/new Road Trip")
	require.Equal(t, "Road Trip", f.store.Active())

	submit(m, "/topic Science")
	require.Equal(t, conversation.TopicScience, f.store.Active())

	submit(m, "/topics")
	require.Contains(t, m.notice, "Science*")
	require.Contains(t, m.notice, "Road Trip")

	submit(m, "/delete Science")
	require.True(t, m.noticeErr)
	require.True(t, f.store.HasTopic(conversation.TopicScience))

	submit(m, "/delete Road Trip")
	require.False(t, m.noticeErr)
	require.False(t, f.store.HasTopic("Road Trip"))
}

func TestBadCommandsSetErrorNotice(t *testing.T) {
	m, f := newModel(t)

	submit(m, "/frobnicate")
	require.True(t, m.noticeErr)
	require.Contains(t, m.notice, "unknown command /frobnicate")

	submit(m, "/model openai")
	require.True(t, m.noticeErr)
	require.Equal(t, providers.Gemini, f.state.Provider)

	f.selectFn = func(providers.ID) error { return errors.New("nope") }
	submit(m, "/model groq")
	require.Equal(t, "nope", m.notice)

	submit(m, "/tts maybe")
	require.True(t, m.noticeErr)

	submit(m, "hello")
	require.Empty(t, m.notice)
}

func TestQuitAsksToSave(t *testing.T) {
	m, _ := newModel(t)

	submit(m, "/quit")
	require.True(t, m.confirmQuit)
	require.Contains(t, m.View(), "Save chat history")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Nil(t, cmd)
	require.False(t, m.confirmQuit)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.True(t, m.confirmQuit)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, cmd)
	require.True(t, m.SaveOnExit())
	require.Empty(t, m.View())
}

func TestQuitWithoutSaving(t *testing.T) {
	m, _ := newModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	require.NotNil(t, cmd)
	require.False(t, m.SaveOnExit())
}

func TestEventIsAppliedAndHeardPrefillsInput(t *testing.T) {
	m, f := newModel(t)

	ev := dispatch.Event{Kind: dispatch.KindListen, Topic: conversation.TopicGeneral, Heard: "what time is it"}
	_, cmd := m.Update(eventMsg(ev))
	require.NotNil(t, cmd)
	require.Len(t, f.applied, 1)
	require.Equal(t, "what time is it", m.textarea.Value())

	m.textarea.SetValue("draft")
	m.Update(eventMsg(dispatch.Event{Kind: dispatch.KindListen, Heard: "ignored"}))
	require.Equal(t, "draft", m.textarea.Value())
}

func TestWaitForEventReportsClosedStream(t *testing.T) {
	ch := make(chan dispatch.Event, 1)
	ch <- dispatch.Event{TaskID: "t1"}
	require.Equal(t, eventMsg(dispatch.Event{TaskID: "t1"}), waitForEvent(ch)())
	close(ch)
	require.Equal(t, eventsClosedMsg{}, waitForEvent(ch)())
}

func TestViewShowsTopicProviderAndMessages(t *testing.T) {
	m, f := newModel(t)
	at := time.Date(2024, time.June, 3, 9, 30, 0, 0, time.Local)
	f.store.AppendActive(conversation.NewMessage(conversation.SenderUser, "ping", at))
	f.store.AppendActive(conversation.NewMessage(conversation.SenderError, "Error: Google Gemini: boom", at))
	m.refresh(true)

	out := m.View()
	require.Contains(t, out, conversation.TopicGeneral)
	require.Contains(t, out, "Google Gemini")
	require.Contains(t, out, "configured")
	require.Contains(t, out, "ping")
	require.Contains(t, out, "09:30")
}

func TestHelpOpensPreview(t *testing.T) {
	m, _ := newModel(t)
	submit(m, "/help")
	require.True(t, m.previewing)
	require.True(t, strings.Contains(m.preview, "/attach <path>..."))

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.previewing)
}
