package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultListenTimeout = 5 * time.Second
	DefaultPhraseLimit   = 10 * time.Second

	// wavHeaderSize is the length of a canonical PCM WAV header.
	wavHeaderSize = 44
)

// Recorder captures microphone audio through an external command that writes
// WAV to stdout. The default is sox's rec, which waits for sound above the
// noise floor, stops after a second of silence and trims at the phrase limit.
type Recorder struct {
	Command       string
	Args          []string
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	Logger        zerolog.Logger
}

func (r *Recorder) command() (string, []string) {
	phrase := r.PhraseLimit
	if phrase <= 0 {
		phrase = DefaultPhraseLimit
	}
	if r.Command != "" {
		return r.Command, r.Args
	}
	return "rec", []string{
		"-q", "-c", "1", "-r", "16000", "-b", "16", "-t", "wav", "-",
		"silence", "1", "0.1", "1%", "1", "1.0", "1%",
		"trim", "0", strconv.Itoa(int(phrase.Seconds())),
	}
}

// Available reports whether the recording command is installed.
func (r *Recorder) Available() bool {
	name, _ := r.command()
	_, err := exec.LookPath(name)
	return err == nil
}

func (r *Recorder) Capture(ctx context.Context) ([]byte, error) {
	listen, phrase := r.ListenTimeout, r.PhraseLimit
	if listen <= 0 {
		listen = DefaultListenTimeout
	}
	if phrase <= 0 {
		phrase = DefaultPhraseLimit
	}

	ctx, cancel := context.WithTimeout(ctx, listen+phrase)
	defer cancel()

	name, args := r.command()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug().Str("command", name).Msg("recording")
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if stdout.Len() <= wavHeaderSize {
			return nil, ErrNoSpeech
		}
		return stdout.Bytes(), nil
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, detail)
	}
	if stdout.Len() <= wavHeaderSize {
		return nil, ErrNoSpeech
	}
	return stdout.Bytes(), nil
}
