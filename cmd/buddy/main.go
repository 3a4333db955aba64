package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"buddy/internal/config"
	"buddy/internal/session"
	"buddy/internal/tui"
)

type cli struct {
	configPath string
	cfg        *config.Config
	logFile    io.Closer
}

func main() {
	c := &cli{}
	root := &cobra.Command{
		Use:           "buddy",
		Short:         "A terminal chat assistant backed by Gemini, Groq and HuggingFace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if c.logFile != nil {
				_ = c.logFile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runChat(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(c.newExportCmd(), c.newTopicsCmd(), c.newProvidersCmd(), c.newKeysCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "buddy:", err)
		os.Exit(1)
	}
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	closer, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	c.logFile = closer
	return nil
}

// runChat runs the interactive window until the user quits.
func (c *cli) runChat(ctx context.Context) error {
	a, err := buildApp(ctx, c.cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	log.Info().
		Str("provider", c.cfg.DefaultProvider).
		Str("history_backend", c.cfg.History.Backend).
		Bool("voice", a.voiceReady).
		Bool("speech", a.speechReady).
		Msg("starting buddy")

	a.startMetrics()
	a.ctrl.LoadHistory(ctx)

	saver, err := session.NewAutoSaver(a.ctrl, c.cfg.History.AutosaveInterval, log.Logger)
	if err != nil {
		return err
	}
	saver.Start()

	m := tui.New(a.ctrl, log.Logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithMouseCellMotion())
	_, runErr := p.Run()
	saver.Stop()

	// A signal ends the program without the save prompt; keep the history.
	save := m.SaveOnExit() || errors.Is(runErr, tea.ErrProgramKilled)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.ctrl.Close(shutdownCtx, save); err != nil {
		log.Error().Err(err).Msg("failed to save history on exit")
		// the chat window is gone, so the warning goes to the terminal
		fmt.Fprintln(os.Stderr, "buddy: could not save history:", err)
	}
	a.stopMetrics(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run chat: %w", runErr)
	}
	log.Info().Bool("saved", save).Msg("stopped")
	return nil
}

// setupLogger sends structured logs to the configured file; the terminal
// belongs to the chat window.
func setupLogger(cfg config.LogConfig) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(cfg.Level))

	if strings.TrimSpace(cfg.File) == "" {
		log.Logger = zerolog.Nop()
		return nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
