package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"buddy/internal/config"
	"buddy/internal/conversation"
	"buddy/internal/providers"
)

// loadStore reads the persisted history into a fresh store.
func (c *cli) loadStore(ctx context.Context) (*conversation.Store, error) {
	backend, err := openHistory(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	store := conversation.NewStore()
	if _, err := store.Load(ctx, backend); err != nil {
		return nil, err
	}
	return store, nil
}

func (c *cli) newExportCmd() *cobra.Command {
	var opts struct {
		Topic string
		Out   string
	}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a topic's saved conversation as a text transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			if !store.HasTopic(opts.Topic) {
				return fmt.Errorf("%w: %q", conversation.ErrUnknownTopic, opts.Topic)
			}

			msgs := store.Messages(opts.Topic)
			if opts.Out == "" || opts.Out == "-" {
				return conversation.WriteTranscript(cmd.OutOrStdout(), opts.Topic, msgs, time.Now())
			}
			return writeExportFile(opts.Out, opts.Topic, msgs)
		},
	}
	cmd.Flags().StringVarP(&opts.Topic, "topic", "t", conversation.TopicGeneral, "topic to export")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func writeExportFile(path, topic string, msgs []conversation.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := conversation.WriteTranscript(f, topic, msgs, time.Now()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

func (c *cli) newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List saved topics and their message counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOPIC\tMESSAGES")
			for _, t := range store.Topics() {
				fmt.Fprintf(tw, "%s\t%d\n", t, store.Len(t))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) newProvidersCmd() *cobra.Command {
	var test bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show configured providers, optionally probing each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			creds := config.NewCredentials(c.cfg.Keyring, log.Logger)
			reg := newRegistry(ctx, c.cfg, creds, log.Logger)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMODEL\tSTATUS")
			for _, info := range reg.Info() {
				status := string(info.Status)
				if test {
					ok, detail := reg.TestConnection(ctx, info.ID)
					if ok {
						status = "[OK] " + detail
					} else {
						status = "[ERR] " + detail
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, info.DisplayName, info.Model, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&test, "test", false, "send a short probe to every provider")
	return cmd
}

func (c *cli) newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys in the OS keyring",
	}

	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a key read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := providers.ParseID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "API key for %s: ", id)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("read key: %w", err)
			}
			secret := strings.TrimSpace(line)
			if secret == "" {
				return fmt.Errorf("empty key")
			}
			if err := config.NewCredentials(c.cfg.Keyring, log.Logger).Store(id, secret); err != nil {
				return fmt.Errorf("store key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", id)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := providers.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := config.NewCredentials(c.cfg.Keyring, log.Logger).Forget(id); err != nil {
				return fmt.Errorf("delete key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed key for %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
