package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
	SenderFile      Sender = "file"
	SenderError     Sender = "error"
	SenderWarning   Sender = "warning"
)

// legacyAssistant is how older snapshots name the assistant.
const legacyAssistant = "buddy"

func ParseSender(s string) (Sender, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case string(SenderUser), string(SenderAssistant), string(SenderSystem),
		string(SenderFile), string(SenderError), string(SenderWarning):
		return Sender(v), nil
	case legacyAssistant:
		return SenderAssistant, nil
	default:
		return "", fmt.Errorf("unknown sender %q", s)
	}
}

// Conversational reports whether messages from s are sent back to a provider.
func (s Sender) Conversational() bool {
	return s == SenderUser || s == SenderAssistant
}

func (s Sender) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Sender) UnmarshalText(b []byte) error {
	v, err := ParseSender(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

const TimestampLayout = "15:04"

type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func NewMessage(sender Sender, text string, at time.Time) Message {
	return Message{Sender: sender, Text: text, Timestamp: at.Format(TimestampLayout)}
}

// Snapshot is the persisted form of every topic's log.
type Snapshot map[string][]Message
