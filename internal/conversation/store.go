package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

const (
	TopicGeneral     = "General Chat"
	TopicProgramming = "Programming"
	TopicCreative    = "Creative"
	TopicScience     = "Science"
)

var DefaultTopics = []string{TopicGeneral, TopicProgramming, TopicCreative, TopicScience}

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrTopicExists    = errors.New("topic already exists")
	ErrEmptyTopic     = errors.New("topic name is empty")
	ErrProtectedTopic = errors.New("default topics cannot be deleted")
)

// Persister loads and saves a full snapshot.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// PersistenceError wraps a load or save failure. It is reported, never fatal.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store owns every topic and its message log. All methods are safe for
// concurrent use; the mutex is the only synchronization point for appends
// coming from background work.
type Store struct {
	mu     sync.RWMutex
	order  []string
	logs   map[string][]Message
	active string
}

func NewStore() *Store {
	s := &Store{logs: make(map[string][]Message, len(DefaultTopics))}
	for _, t := range DefaultTopics {
		s.order = append(s.order, t)
		s.logs[t] = nil
	}
	s.active = DefaultTopics[0]
	return s
}

func IsProtected(topic string) bool {
	return slices.Contains(DefaultTopics, topic)
}

func (s *Store) Append(topic string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[topic]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	s.logs[topic] = append(s.logs[topic], msg)
	return nil
}

func (s *Store) AppendActive(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[s.active] = append(s.logs[s.active], msg)
}

// Recent returns at most n user/assistant messages from the end of topic's log.
func (s *Store) Recent(topic string, n int) []Message {
	if n <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[topic]
	out := make([]Message, 0, n)
	for i := len(log) - 1; i >= 0 && len(out) < n; i-- {
		if log[i].Sender.Conversational() {
			out = append(out, log[i])
		}
	}
	slices.Reverse(out)
	return out
}

func (s *Store) Messages(topic string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs[topic])
}

func (s *Store) Len(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[topic])
}

func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func (s *Store) HasTopic(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[name]
	return ok
}

func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) CreateTopic(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyTopic
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[name]; ok {
		return fmt.Errorf("%w: %q", ErrTopicExists, name)
	}
	s.order = append(s.order, name)
	s.logs[name] = nil
	return nil
}

// DeleteTopic removes a user-created topic. When the active topic is
// deleted the first remaining topic becomes active.
func (s *Store) DeleteTopic(name string) error {
	if IsProtected(name) {
		return fmt.Errorf("%w: %q", ErrProtectedTopic, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	delete(s.logs, name)
	s.order = slices.DeleteFunc(s.order, func(t string) bool { return t == name })
	if s.active == name {
		s.active = s.order[0]
	}
	return nil
}

func (s *Store) SwitchActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	s.active = name
	return nil
}

func (s *Store) Clear(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[topic]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	s.logs[topic] = nil
	return nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.logs))
	for topic, log := range s.logs {
		msgs := slices.Clone(log)
		if msgs == nil {
			msgs = []Message{}
		}
		snap[topic] = msgs
	}
	return snap
}

// Merge applies a persisted snapshot: persisted topics replace in-memory
// ones with the same name, topics absent from snap are left untouched.
// New topics are added in sorted order so repeated loads are stable.
func (s *Store) Merge(snap Snapshot) int {
	names := make([]string, 0, len(snap))
	for name := range snap {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, ok := s.logs[name]; !ok {
			s.order = append(s.order, name)
		}
		s.logs[name] = slices.Clone(snap[name])
	}
	return len(names)
}

func (s *Store) Load(ctx context.Context, p Persister) (int, error) {
	snap, err := p.Load(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "load", Err: err}
	}
	return s.Merge(snap), nil
}

func (s *Store) Save(ctx context.Context, p Persister) error {
	if err := p.Save(ctx, s.Snapshot()); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}
