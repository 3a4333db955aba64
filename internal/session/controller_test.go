package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"buddy/internal/attachment"
	"buddy/internal/commands"
	"buddy/internal/conversation"
	"buddy/internal/dispatch"
	"buddy/internal/providers"
	"buddy/internal/providers/registry"
	"buddy/internal/storage"
)

var clock = time.Date(2024, time.June, 3, 9, 30, 0, 0, time.Local)

type echoProvider struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (e *echoProvider) Chat(_ context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	e.mu.Lock()
	e.prompts = append(e.prompts, req.UserPrompt)
	e.mu.Unlock()
	if e.err != nil {
		return providers.ChatResponse{}, e.err
	}
	return providers.ChatResponse{Text: "echo: " + req.UserPrompt}, nil
}

func (e *echoProvider) last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		return ""
	}
	return e.prompts[len(e.prompts)-1]
}

type fixture struct {
	ctrl     *Controller
	store    *conversation.Store
	reg      *registry.Registry
	disp     *dispatch.Dispatcher
	provider *echoProvider
	file     *storage.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := &echoProvider{}
	reg := registry.New(context.Background(), registry.Options{
		Clients: map[providers.ID]providers.Provider{providers.Groq: p},
		Logger:  zerolog.Nop(),
	})
	disp := dispatch.New(dispatch.Config{Backend: reg, Now: func() time.Time { return clock }, Logger: zerolog.Nop()})
	store := conversation.NewStore()
	file := storage.NewFileStore(filepath.Join(t.TempDir(), "chat_history.json"))

	ctrl := New(Config{
		Store:           store,
		Persister:       file,
		Providers:       reg,
		Dispatcher:      disp,
		Interceptor:     commands.Interceptor{Jokes: commands.JokeList{"a joke"}},
		DefaultProvider: providers.Groq,
		Capabilities:    map[string]bool{"Voice input": false, "PDF attachments": true},
		Now:             func() time.Time { return clock },
		Logger:          zerolog.Nop(),
	})
	t.Cleanup(func() { disp.Close() })
	return &fixture{ctrl: ctrl, store: store, reg: reg, disp: disp, provider: p, file: file}
}

func (f *fixture) applyNext(t *testing.T) dispatch.Event {
	t.Helper()
	select {
	case ev := <-f.ctrl.Events():
		f.ctrl.Apply(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return dispatch.Event{}
	}
}

func senders(msgs []conversation.Message) []conversation.Sender {
	out := make([]conversation.Sender, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sender)
	}
	return out
}

func TestSubmitGeneratesReply(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Submit("hello")
	ev := f.applyNext(t)
	require.Equal(t, dispatch.KindGenerate, ev.Kind)
	require.Equal(t, "hello", f.provider.last())

	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Equal(t, []conversation.Sender{conversation.SenderUser, conversation.SenderSystem, conversation.SenderAssistant}, senders(msgs))
	require.Equal(t, "Generating with Groq Llama 3.3...", msgs[1].Text)
	require.Equal(t, "echo: hello", msgs[2].Text)
	require.Equal(t, providers.StatusWorking, f.reg.Status(providers.Groq))
}

func TestSubmitIncludesHistoryOnce(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Submit("first")
	f.applyNext(t)
	f.ctrl.Submit("second")
	f.applyNext(t)

	want := "Conversation:\nuser: first\nassistant: echo: first\n\nsecond"
	require.Equal(t, want, f.provider.last())
}

func TestSubmitInterceptsCommands(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Submit("What time is it?")
	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Len(t, msgs, 2)
	require.Equal(t, "09:30 AM", msgs[1].Text)
	require.Empty(t, f.provider.last())

	f.ctrl.Submit("tell me a joke")
	msgs = f.store.Messages(conversation.TopicGeneral)
	require.Equal(t, "a joke", msgs[len(msgs)-1].Text)

	f.ctrl.Submit("   ")
	require.Len(t, f.store.Messages(conversation.TopicGeneral), 4)
}

func TestGenerationFailureMarksStatus(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("provider status 500")

	f.ctrl.Submit("hello")
	f.applyNext(t)

	msgs := f.store.Messages(conversation.TopicGeneral)
	last := msgs[len(msgs)-1]
	require.Equal(t, conversation.SenderError, last.Sender)
	require.Equal(t, "Error: Groq Llama 3.3: provider status 500", last.Text)
	require.Equal(t, providers.ErrorStatus("provider status 500"), f.reg.Status(providers.Groq))
}

func TestReplyLandsInOriginTopic(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Submit("hello")
	require.NoError(t, f.ctrl.SwitchTopic(conversation.TopicScience))
	f.applyNext(t)

	require.Len(t, f.store.Messages(conversation.TopicGeneral), 3)
	require.Empty(t, f.store.Messages(conversation.TopicScience))
}

func TestReplyFallsBackToActiveWhenTopicDeleted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.CreateTopic("Scratch"))
	require.Equal(t, "Scratch", f.store.Active())

	f.ctrl.Submit("hello")
	require.NoError(t, f.ctrl.DeleteTopic("Scratch"))
	require.Equal(t, conversation.TopicGeneral, f.store.Active())
	f.applyNext(t)

	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Equal(t, "echo: hello", msgs[len(msgs)-1].Text)
}

func TestUnavailableProviderFailsFast(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SelectProvider(providers.HuggingFace))

	f.ctrl.Submit("hello")
	f.applyNext(t)

	msgs := f.store.Messages(conversation.TopicGeneral)
	last := msgs[len(msgs)-1]
	require.Equal(t, conversation.SenderError, last.Sender)
	require.Contains(t, last.Text, "missing api key")
	require.Equal(t, providers.StatusUnavailable, f.reg.Status(providers.HuggingFace))

	require.Error(t, f.ctrl.SelectProvider("openai"))
}

func TestTestAllReportsEveryProvider(t *testing.T) {
	f := newFixture(t)
	f.ctrl.TestAll()
	for range providers.All {
		f.applyNext(t)
	}

	var ok, failed int
	for _, m := range f.store.Messages(conversation.TopicGeneral) {
		switch {
		case strings.HasPrefix(m.Text, "[OK]"):
			ok++
		case strings.HasPrefix(m.Text, "[ERR]"):
			failed++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 2, failed)
	require.Equal(t, providers.StatusWorking, f.reg.Status(providers.Groq))
}

func TestAttachFeedsPrompt(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("buy milk"), 0o600))

	items := f.ctrl.Attach([]string{path})
	require.Len(t, items, 1)
	f.ctrl.Submit("summarize")
	f.applyNext(t)
	require.Equal(t, "=== FILES ===\nFile: notes.txt\nbuy milk\n=== END FILES ===\n\nsummarize", f.provider.last())

	f.ctrl.ClearAttachments()
	require.Empty(t, f.ctrl.Attachments())
}

func TestExportWritesTranscript(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Submit("what is the date")
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, f.ctrl.Export(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "Buddy AI Chat Export - General Chat\nExported: 2024-06-03 09:30\n"))
	require.Contains(t, string(b), "[09:30] USER: what is the date\n\n")
	require.Contains(t, string(b), "[09:30] ASSISTANT: June 03, 2024\n\n")
}

func TestHistoryRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Submit("What time is it?")
	require.NoError(t, f.ctrl.SaveHistory(context.Background()))

	other := New(Config{
		Store:      conversation.NewStore(),
		Persister:  f.file,
		Providers:  f.reg,
		Dispatcher: f.disp,
		Now:        func() time.Time { return clock },
		Logger:     zerolog.Nop(),
	})
	other.LoadHistory(context.Background())
	msgs := other.Store().Messages(conversation.TopicGeneral)
	require.Equal(t, "What time is it?", msgs[0].Text)
	require.Equal(t, "Chat history loaded", msgs[len(msgs)-1].Text)
}

type brokenPersister struct{}

func (brokenPersister) Load(context.Context) (conversation.Snapshot, error) {
	return nil, errors.New("corrupt")
}

func (brokenPersister) Save(context.Context, conversation.Snapshot) error {
	return errors.New("read-only")
}

func TestHistoryFailuresAreReported(t *testing.T) {
	f := newFixture(t)
	f.ctrl.persister = brokenPersister{}

	f.ctrl.LoadHistory(context.Background())
	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Equal(t, conversation.SenderWarning, msgs[0].Sender)
	require.True(t, strings.HasPrefix(msgs[0].Text, "Could not load history: "))

	var perr *conversation.PersistenceError
	require.ErrorAs(t, f.ctrl.SaveHistory(context.Background()), &perr)
	msgs = f.store.Messages(conversation.TopicGeneral)
	last := msgs[len(msgs)-1]
	require.Equal(t, conversation.SenderWarning, last.Sender)
	require.True(t, strings.HasPrefix(last.Text, "Could not save history: "))
}

func TestAutoSaveFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.ctrl.persister = brokenPersister{}

	a, err := NewAutoSaver(f.ctrl, time.Second, zerolog.Nop())
	require.NoError(t, err)
	a.Start()
	defer a.Stop()

	require.Eventually(t, func() bool {
		for _, m := range f.store.Messages(conversation.TopicGeneral) {
			if m.Sender == conversation.SenderWarning && strings.HasPrefix(m.Text, "Could not save history: ") {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
}

func TestListenWithoutVoice(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Listen()
	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Equal(t, "Voice error: voice input not available", msgs[0].Text)
}

func TestDiagnostics(t *testing.T) {
	f := newFixture(t)
	report := f.ctrl.Diagnostics()
	require.Contains(t, report, "[OK] Groq Llama 3.3 - configured")
	require.Contains(t, report, "[ERR] Google Gemini - unavailable")
	require.Contains(t, report, "[OK] PDF attachments")
	require.Contains(t, report, "[ERR] Voice input")
}

func TestClearChat(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Submit("what time")
	f.ctrl.ClearChat()
	msgs := f.store.Messages(conversation.TopicGeneral)
	require.Len(t, msgs, 1)
	require.Equal(t, "Chat cleared", msgs[0].Text)
}

type countingSaver struct{ n atomic.Int32 }

func (c *countingSaver) SaveHistory(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestAutoSaverRuns(t *testing.T) {
	s := &countingSaver{}
	a, err := NewAutoSaver(s, time.Second, zerolog.Nop())
	require.NoError(t, err)
	a.Start()
	require.Eventually(t, func() bool { return s.n.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	a.Stop()
}

func TestAttachmentSetIsReplaced(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("A"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0o600))

	f.ctrl.Attach([]string{a})
	f.ctrl.Attach([]string{b})
	items := f.ctrl.Attachments()
	require.Equal(t, []attachment.Attachment{{Path: b, Name: "b.txt", Text: "B", SizeBytes: 1}}, items)
}
