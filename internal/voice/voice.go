package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNoSpeech      = errors.New("no speech detected")
	ErrNotUnderstood = errors.New("could not understand audio")
	ErrBusy          = errors.New("already listening")
	ErrDisabled      = errors.New("voice input not configured")
)

// Error is a capture or recognition failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Capturer records one phrase of audio as WAV.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Recognizer turns WAV audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte) (string, error)
}

// Speaker plays text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener captures a phrase and returns its transcript.
type Listener struct {
	Capturer   Capturer
	Recognizer Recognizer
	// RecognizeTimeout bounds the transcription request.
	RecognizeTimeout time.Duration
	Logger           zerolog.Logger
}

func (l *Listener) Listen(ctx context.Context) (string, error) {
	if l == nil || l.Capturer == nil || l.Recognizer == nil {
		return "", &Error{Stage: "listen", Err: ErrDisabled}
	}

	start := time.Now()
	wav, err := l.Capturer.Capture(ctx)
	if err != nil {
		return "", &Error{Stage: "capture", Err: err}
	}

	timeout := l.RecognizeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := l.Recognizer.Recognize(rctx, wav)
	if err != nil {
		return "", &Error{Stage: "recognize", Err: err}
	}
	l.Logger.Debug().Int("audio_bytes", len(wav)).Dur("elapsed", time.Since(start)).Msg("voice captured")
	return text, nil
}
