package commands

import (
	_ "embed"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	TimeLayout = "03:04 PM"
	DateLayout = "January 02, 2006"
)

type JokeSource interface {
	Joke() string
}

// Interceptor answers a few requests locally without calling a provider.
// Triggers are case-insensitive substrings checked in order: time, date, joke.
type Interceptor struct {
	Now   func() time.Time
	Jokes JokeSource
}

func (i Interceptor) TryHandle(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}

	switch {
	case strings.Contains(lower, "time"):
		return now().Format(TimeLayout), true
	case strings.Contains(lower, "date"):
		return now().Format(DateLayout), true
	case strings.Contains(lower, "joke") && i.Jokes != nil:
		return i.Jokes.Joke(), true
	}
	return "", false
}

//go:embed jokes.txt
var jokesFile string

// JokeList picks a random line.
type JokeList []string

func (l JokeList) Joke() string {
	if len(l) == 0 {
		return ""
	}
	return l[rand.IntN(len(l))]
}

// EmbeddedJokes is the bundled list.
var EmbeddedJokes = parseJokes(jokesFile)

func parseJokes(s string) JokeList {
	var out JokeList
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
