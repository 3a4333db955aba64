package voice

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DefaultRate = 175
	// SpeakLimit is how many characters of a reply get read aloud.
	SpeakLimit = 200
)

// CommandSpeaker reads text aloud with the platform speech command: say on
// macOS, espeak elsewhere.
type CommandSpeaker struct {
	Command string
	Rate    int
	Logger  zerolog.Logger
}

func (s *CommandSpeaker) command() string {
	if s.Command != "" {
		return s.Command
	}
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

// Available reports whether the speech command is installed.
func (s *CommandSpeaker) Available() bool {
	_, err := exec.LookPath(s.command())
	return err == nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = Head(text, SpeakLimit)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	name, args := s.commandLine(text)
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		s.Logger.Error().Err(err).Str("output", string(out)).Msg("speech command failed")
		return fmt.Errorf("%s command failed: %w", name, err)
	}
	return nil
}

// commandLine ends option parsing before the text so a reply starting with
// a dash is spoken, not read as a flag.
func (s *CommandSpeaker) commandLine(text string) (string, []string) {
	rate := s.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	name := s.command()
	flag := "-r"
	if name == "espeak" {
		flag = "-s"
	}
	return name, []string{flag, strconv.Itoa(rate), "--", text}
}

// Head returns the first n characters of s.
func Head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
