package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sift/internal/config"
	"sift/internal/media"
	"sift/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		kind        string
		title       string
		priority    int
		maxAttempts int
		key         string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <source>",
		Short: "Submit a media source for enrichment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				src, err := media.ParseSource(kind, strings.TrimSpace(args[0]), title)
				if err != nil {
					return err
				}
				input, err := src.Marshal()
				if err != nil {
					return err
				}

				idempotencyKey := strings.TrimSpace(key)
				if idempotencyKey == "" {
					idempotencyKey = src.Key()
				}
				attempts := maxAttempts
				if attempts <= 0 {
					attempts = cfg.Worker.DefaultMaxAttempts
				}

				res, err := store.Enqueue(cmd.Context(), input, idempotencyKey, priority, attempts)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if res.AlreadyExisted {
					fmt.Fprintf(out, "Source already enqueued as job %d (status %s)\n", res.JobID, res.Status)
					return nil
				}
				fmt.Fprintf(out, "Enqueued job %d for %s\n", res.JobID, src.Location)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "file", "Source kind: url or file")
	cmd.Flags().StringVar(&title, "title", "", "Optional display title (inferred from the source when empty)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Claim priority; higher runs first")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget before dead-lettering (default from config)")
	cmd.Flags().StringVar(&key, "key", "", "Explicit idempotency key (derived from the source when empty)")
	return cmd
}
