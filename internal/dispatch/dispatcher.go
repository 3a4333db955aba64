package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buddy/internal/conversation"
	"buddy/internal/metrics"
	"buddy/internal/providers"
	"buddy/internal/voice"
)

type Kind string

const (
	KindGenerate Kind = "generate"
	KindTest     Kind = "test"
	KindListen   Kind = "listen"
	KindSpeak    Kind = "speak"
)

// Event is the completion report of one task. The interactive loop applies
// events in the order they arrive.
type Event struct {
	TaskID   string
	Kind     Kind
	Topic    string
	Provider providers.ID
	Messages []conversation.Message
	// Status is the provider's new status; empty means unchanged.
	Status providers.Status
	// Reply is the generated text of a successful generation.
	Reply string
	// Heard is the transcript of a successful voice capture.
	Heard string
}

// Backend is the provider table as the dispatcher sees it.
type Backend interface {
	Generate(ctx context.Context, id providers.ID, prompt string) (string, error)
	TestConnection(ctx context.Context, id providers.ID) (bool, string)
	DisplayName(id providers.ID) string
}

type VoiceInput interface {
	Listen(ctx context.Context) (string, error)
}

const (
	DefaultEventBuffer = 64

	errorTextLimit = 100
	voiceTextLimit = 30
)

type Config struct {
	Backend     Backend
	Listener    VoiceInput
	Speaker     voice.Speaker
	EventBuffer int
	Now         func() time.Time
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Dispatcher runs each unit of work on its own goroutine. Tasks cannot be
// cancelled individually; Close cancels everything still running.
type Dispatcher struct {
	backend  Backend
	listener VoiceInput
	speaker  voice.Speaker
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listening atomic.Bool
	inflight  atomic.Int64
}

func New(cfg Config) *Dispatcher {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		backend:  cfg.Backend,
		listener: cfg.Listener,
		speaker:  cfg.Speaker,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  m,
		events:   make(chan Event, cfg.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events delivers task completions in completion order.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Listening reports whether a voice capture is in flight.
func (d *Dispatcher) Listening() bool {
	return d.listening.Load()
}

// Pending is the number of tasks that have not reported yet.
func (d *Dispatcher) Pending() int {
	return int(d.inflight.Load())
}

// Close cancels running tasks and waits for them to finish.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// Generate sends prompt to provider and reports the reply against topic.
func (d *Dispatcher) Generate(topic string, id providers.ID, prompt string) string {
	return d.spawn(KindGenerate, topic, id, func(ctx context.Context, ev *Event) {
		text, err := d.backend.Generate(ctx, id, prompt)
		if err != nil {
			detail := err.Error()
			var perr *providers.Error
			if errors.As(err, &perr) {
				detail = perr.Detail()
			}
			ev.Status = providers.ErrorStatus(detail)
			ev.Messages = append(ev.Messages, d.message(conversation.SenderError,
				providers.Truncate(fmt.Sprintf("Error: %s: %s", d.backend.DisplayName(id), detail), errorTextLimit)))
			return
		}
		ev.Status = providers.StatusWorking
		ev.Reply = text
		ev.Messages = append(ev.Messages, d.message(conversation.SenderAssistant, text))
	})
}

// Test runs the connectivity probe for one provider.
func (d *Dispatcher) Test(topic string, id providers.ID) string {
	return d.spawn(KindTest, topic, id, func(ctx context.Context, ev *Event) {
		name := d.backend.DisplayName(id)
		ok, detail := d.backend.TestConnection(ctx, id)
		if !ok {
			ev.Status = providers.ErrorStatus(detail)
			ev.Messages = append(ev.Messages, d.message(conversation.SenderError, fmt.Sprintf("[ERR] %s: %s", name, detail)))
			return
		}
		ev.Status = providers.StatusWorking
		ev.Messages = append(ev.Messages, d.message(conversation.SenderSystem, fmt.Sprintf("[OK] %s: %s", name, detail)))
	})
}

// Listen starts a voice capture. Only one capture runs at a time.
func (d *Dispatcher) Listen(topic string) (string, error) {
	if d.listener == nil {
		return "", &voice.Error{Stage: "listen", Err: voice.ErrDisabled}
	}
	if !d.listening.CompareAndSwap(false, true) {
		d.metrics.ObserveVoice(metrics.OutcomeRejected)
		return "", &voice.Error{Stage: "listen", Err: voice.ErrBusy}
	}
	return d.spawn(KindListen, topic, "", func(ctx context.Context, ev *Event) {
		defer d.listening.Store(false)

		text, err := d.listener.Listen(ctx)
		if err != nil {
			d.metrics.ObserveVoice(metrics.OutcomeError)
			ev.Messages = append(ev.Messages, d.message(conversation.SenderWarning,
				"Voice error: "+providers.Truncate(err.Error(), voiceTextLimit)))
			return
		}
		d.metrics.ObserveVoice(metrics.OutcomeOK)
		ev.Heard = text
		ev.Messages = append(ev.Messages, d.message(conversation.SenderSystem, "Heard: "+text))
	}), nil
}

// Speak reads the head of text aloud. Only failures produce messages.
func (d *Dispatcher) Speak(topic, text string) string {
	return d.spawn(KindSpeak, topic, "", func(ctx context.Context, ev *Event) {
		if d.speaker == nil {
			return
		}
		if err := d.speaker.Speak(ctx, voice.Head(text, voice.SpeakLimit)); err != nil {
			ev.Messages = append(ev.Messages, d.message(conversation.SenderWarning,
				"Speech error: "+providers.Truncate(err.Error(), voiceTextLimit)))
		}
	})
}

func (d *Dispatcher) message(sender conversation.Sender, text string) conversation.Message {
	return conversation.NewMessage(sender, text, d.now())
}

func (d *Dispatcher) spawn(kind Kind, topic string, id providers.ID, run func(ctx context.Context, ev *Event)) string {
	taskID := uuid.NewString()
	log := d.logger.With().Str("task_id", taskID).Str("kind", string(kind)).Logger()
	if id != "" {
		log = log.With().Str("provider", string(id)).Logger()
	}

	d.wg.Add(1)
	d.inflight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inflight.Add(-1)
		start := time.Now()
		ev := Event{TaskID: taskID, Kind: kind, Topic: topic, Provider: id}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					d.metrics.TasksPanics.Inc()
					log.Error().Interface("panic", rec).Msg("task panicked")
					ev.Status = ""
					ev.Messages = append(ev.Messages, d.message(conversation.SenderError, fmt.Sprintf("Error: internal failure in %s task", kind)))
				}
			}()
			run(d.ctx, &ev)
		}()

		log.Debug().Dur("elapsed", time.Since(start)).Int("messages", len(ev.Messages)).Msg("task done")
		select {
		case d.events <- ev:
		case <-d.ctx.Done():
			log.Warn().Msg("dropping event after shutdown")
		}
	}()
	return taskID
}
