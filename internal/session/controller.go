package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"buddy/internal/attachment"
	"buddy/internal/commands"
	"buddy/internal/conversation"
	"buddy/internal/dispatch"
	"buddy/internal/metrics"
	"buddy/internal/prompt"
	"buddy/internal/providers"
	"buddy/internal/providers/registry"
	"buddy/internal/voice"
)

// ProviderTable is the status side of the provider registry.
type ProviderTable interface {
	DisplayName(id providers.ID) string
	SetStatus(id providers.ID, s providers.Status)
	Info() []registry.Info
}

// State is the session state owned by the controller.
type State struct {
	Provider providers.ID
	TTS      bool
}

type Config struct {
	Store       *conversation.Store
	Persister   conversation.Persister
	Providers   ProviderTable
	Dispatcher  *dispatch.Dispatcher
	Attachments *attachment.Set
	Interceptor commands.Interceptor
	Window      int

	DefaultProvider providers.ID
	TTS             bool
	// Capabilities lists optional components for diagnostics, e.g.
	// "Voice input" -> true.
	Capabilities map[string]bool

	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Controller owns all session mutation. Its methods are meant to be called
// from the interactive loop only; background work reaches it through Apply.
type Controller struct {
	store       *conversation.Store
	persister   conversation.Persister
	providers   ProviderTable
	dispatcher  *dispatch.Dispatcher
	attachments *attachment.Set
	interceptor commands.Interceptor
	assembler   prompt.Assembler
	caps        map[string]bool

	state   State
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global()
	}
	if cfg.Attachments == nil {
		cfg.Attachments = attachment.NewSet(nil)
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = providers.Gemini
	}
	if cfg.Interceptor.Now == nil {
		cfg.Interceptor.Now = cfg.Now
	}
	return &Controller{
		store:       cfg.Store,
		persister:   cfg.Persister,
		providers:   cfg.Providers,
		dispatcher:  cfg.Dispatcher,
		attachments: cfg.Attachments,
		interceptor: cfg.Interceptor,
		assembler:   prompt.Assembler{History: cfg.Store, Window: cfg.Window},
		caps:        cfg.Capabilities,
		state:       State{Provider: cfg.DefaultProvider, TTS: cfg.TTS},
		now:         cfg.Now,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Store() *conversation.Store { return c.store }

func (c *Controller) Attachments() []attachment.Attachment { return c.attachments.Items() }

func (c *Controller) Events() <-chan dispatch.Event { return c.dispatcher.Events() }

// Pending is the number of background tasks still running.
func (c *Controller) Pending() int { return c.dispatcher.Pending() }

func (c *Controller) ProviderInfo() []registry.Info { return c.providers.Info() }

func (c *Controller) say(sender conversation.Sender, text string) {
	c.store.AppendActive(conversation.NewMessage(sender, text, c.now()))
}

// Submit handles one user message. Local commands are answered inline;
// everything else is sent to the selected provider in the background.
func (c *Controller) Submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	topic := c.store.Active()

	// Built before the user message is appended so it is not repeated in
	// the history block.
	promptText := c.assembler.Build(topic, text, c.attachments.Items())
	c.say(conversation.SenderUser, text)

	if reply, ok := c.interceptor.TryHandle(text); ok {
		c.say(conversation.SenderAssistant, reply)
		c.speak(topic, reply)
		return
	}

	id := c.state.Provider
	c.say(conversation.SenderSystem, fmt.Sprintf("Generating with %s...", c.providers.DisplayName(id)))
	task := c.dispatcher.Generate(topic, id, promptText)
	c.logger.Debug().Str("task_id", task).Str("provider", string(id)).Str("topic", topic).Int("prompt_chars", len(promptText)).Msg("generation dispatched")
}

func (c *Controller) SelectProvider(id providers.ID) error {
	if _, err := providers.ParseID(string(id)); err != nil {
		return err
	}
	c.state.Provider = id
	c.say(conversation.SenderSystem, "Switched to "+c.providers.DisplayName(id))
	return nil
}

func (c *Controller) TestConnection(id providers.ID) {
	c.say(conversation.SenderSystem, fmt.Sprintf("Testing %s...", c.providers.DisplayName(id)))
	c.dispatcher.Test(c.store.Active(), id)
}

func (c *Controller) TestAll() {
	c.say(conversation.SenderSystem, "Testing all AI models...")
	for _, id := range providers.All {
		c.TestConnection(id)
	}
}

// Attach replaces the attachment set with paths.
func (c *Controller) Attach(paths []string) []attachment.Attachment {
	if len(paths) == 0 {
		return c.attachments.Items()
	}
	items := c.attachments.Replace(paths)
	c.say(conversation.SenderFile, fmt.Sprintf("Attached %d file(s)", len(items)))
	return items
}

func (c *Controller) ClearAttachments() {
	c.attachments.Clear()
	c.say(conversation.SenderSystem, "Files cleared")
}

func (c *Controller) PreviewAttachments() string {
	return c.attachments.Preview()
}

// CreateTopic adds a topic and makes it active.
func (c *Controller) CreateTopic(name string) error {
	name = strings.TrimSpace(name)
	if err := c.store.CreateTopic(name); err != nil {
		return err
	}
	return c.store.SwitchActive(name)
}

func (c *Controller) DeleteTopic(name string) error {
	return c.store.DeleteTopic(name)
}

func (c *Controller) SwitchTopic(name string) error {
	return c.store.SwitchActive(name)
}

func (c *Controller) ClearChat() {
	if err := c.store.Clear(c.store.Active()); err != nil {
		c.logger.Error().Err(err).Msg("clear chat")
		return
	}
	c.say(conversation.SenderSystem, "Chat cleared")
}

// Export writes the active topic's transcript to path.
func (c *Controller) Export(path string) error {
	topic := c.store.Active()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := conversation.WriteTranscript(f, topic, c.store.Messages(topic), c.now()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	c.logger.Info().Str("topic", topic).Str("path", path).Msg("chat exported")
	return nil
}

// Listen starts a voice capture unless one is already running.
func (c *Controller) Listen() {
	_, err := c.dispatcher.Listen(c.store.Active())
	if err != nil {
		c.say(conversation.SenderWarning, "Voice error: "+voiceReason(err))
		return
	}
	c.say(conversation.SenderSystem, "Listening...")
}

func voiceReason(err error) string {
	switch {
	case errors.Is(err, voice.ErrBusy):
		return "already listening"
	case errors.Is(err, voice.ErrDisabled):
		return "voice input not available"
	default:
		return providers.Truncate(err.Error(), 30)
	}
}

func (c *Controller) SetTTS(on bool) {
	c.state.TTS = on
	if on {
		c.say(conversation.SenderSystem, "Speech output on")
		return
	}
	c.say(conversation.SenderSystem, "Speech output off")
}

func (c *Controller) speak(topic, text string) {
	if !c.state.TTS {
		return
	}
	c.dispatcher.Speak(topic, text)
}

// Diagnostics appends a report of runtime, provider and capability status.
func (c *Controller) Diagnostics() string {
	lines := []string{"Go: " + runtime.Version()}
	for _, info := range c.providers.Info() {
		if info.Status.Usable() && !info.Status.IsError() {
			lines = append(lines, fmt.Sprintf("[OK] %s - %s", info.DisplayName, info.Status))
		} else {
			lines = append(lines, fmt.Sprintf("[ERR] %s - %s", info.DisplayName, info.Status))
		}
	}
	for _, name := range sortedKeys(c.caps) {
		mark := "[OK]"
		if !c.caps[name] {
			mark = "[ERR]"
		}
		lines = append(lines, fmt.Sprintf("%s %s", mark, name))
	}
	report := "System Diagnostics:\n" + strings.Join(lines, "\n")
	c.say(conversation.SenderSystem, report)
	return report
}

// Apply folds one completed task into the session. Messages go to the topic
// the task was started from, or the active topic if that one is gone.
func (c *Controller) Apply(ev dispatch.Event) {
	for _, m := range ev.Messages {
		if err := c.store.Append(ev.Topic, m); err != nil {
			c.store.AppendActive(m)
		}
	}
	if ev.Provider != "" && ev.Status != "" {
		c.providers.SetStatus(ev.Provider, ev.Status)
	}
	if ev.Kind == dispatch.KindGenerate && ev.Reply != "" {
		c.speak(ev.Topic, ev.Reply)
	}
}

// LoadHistory merges the persisted snapshot into the store. Failures are
// reported in the conversation and never fatal.
func (c *Controller) LoadHistory(ctx context.Context) {
	if c.persister == nil {
		return
	}
	n, err := c.store.Load(ctx, c.persister)
	if err != nil {
		c.logger.Warn().Err(err).Msg("history load failed")
		c.say(conversation.SenderWarning, fmt.Sprintf("Could not load history: %v", err))
		return
	}
	if n > 0 {
		c.say(conversation.SenderSystem, "Chat history loaded")
	}
}

// SaveHistory writes the store to the persister and reports a failure as a
// warning in the active topic. It also runs on the autosave goroutine.
func (c *Controller) SaveHistory(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	err := c.store.Save(ctx, c.persister)
	c.metrics.ObserveSave(err)
	if err != nil {
		c.logger.Error().Err(err).Msg("history save failed")
		c.say(conversation.SenderWarning, fmt.Sprintf("Could not save history: %v", err))
		return err
	}
	c.logger.Debug().Msg("history saved")
	return nil
}

// Close stops background work and saves history when save is set.
func (c *Controller) Close(ctx context.Context, save bool) error {
	c.dispatcher.Close()
	if !save {
		return nil
	}
	return c.SaveHistory(ctx)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
