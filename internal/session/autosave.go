package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type saver interface {
	SaveHistory(ctx context.Context) error
}

// AutoSaver saves history on a fixed interval in the background.
type AutoSaver struct {
	cron *cron.Cron
}

func NewAutoSaver(s saver, interval time.Duration, logger zerolog.Logger) (*AutoSaver, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.SaveHistory(ctx); err != nil {
			logger.Warn().Err(err).Msg("autosave failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule autosave: %w", err)
	}
	return &AutoSaver{cron: c}, nil
}

func (a *AutoSaver) Start() { a.cron.Start() }

// Stop waits for a running save to finish.
func (a *AutoSaver) Stop() {
	<-a.cron.Stop().Done()
}
