package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sift/internal/config"
	"sift/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueDLQCommand(ctx))
	queueCmd.AddCommand(newQueueRunningCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueReleaseStaleCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var page int
	var pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var status queue.Status
				if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
					parsed, ok := queue.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					status = parsed
				}

				jobs, total, err := store.ListJobs(cmd.Context(), status, queue.Page{Number: page, Size: pageSize})
				if err != nil {
					return err
				}
				if total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						strconv.Itoa(job.Priority),
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						truncate(job.IdempotencyKey, 20),
						formatTimestamp(job.CreatedAt),
					})
				}
				out := renderTable(
					[]string{"ID", "Status", "Priority", "Attempts", "Key", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) total\n", total)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", queue.DefaultPageSize, "Jobs per page")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range queue.AllStatuses() {
					if count, ok := stats[status]; ok {
						rows = append(rows, []string{string(status), strconv.Itoa(count)})
					}
				}
				out := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueDLQCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				jobs, err := store.DeadLetterJobs(cmd.Context())
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Dead letter queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						job.ErrorCode,
						truncate(job.LastError, 60),
						formatTimestamp(job.UpdatedAt),
					})
				}
				out := renderTable(
					[]string{"ID", "Attempts", "Code", "Last Error", "Failed At"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueRunningCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "Show in-flight jobs with heartbeat telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				return printRunningJobs(cmd, store)
			})
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				job, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}
				return printJobDetail(cmd, job)
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				cancelled, err := store.Cancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !cancelled {
					return fmt.Errorf("job %d is not cancellable (already running or finished)", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %d\n", id)
				return nil
			})
		},
	}
}

func newQueueReleaseStaleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release-stale",
		Short: "Release jobs whose workers stopped heartbeating",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				released, err := store.ReleaseStaleJobs(cmd.Context(), secondsDuration(cfg.Worker.StaleAfter))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale job(s)\n", released)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return dead-lettered jobs to the queue with a fresh attempt budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				retried, err := store.RetryDeadLetter(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", retried)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove succeeded and cancelled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.ClearTerminal(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
}

func printJobDetail(cmd *cobra.Command, job *queue.Job) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %d\n", job.ID)
	fmt.Fprintf(out, "  Status:       %s\n", job.Status)
	fmt.Fprintf(out, "  Key:          %s\n", job.IdempotencyKey)
	fmt.Fprintf(out, "  Priority:     %d\n", job.Priority)
	fmt.Fprintf(out, "  Attempts:     %d/%d\n", job.Attempts, job.MaxAttempts)
	fmt.Fprintf(out, "  Created:      %s\n", formatTimestamp(job.CreatedAt))
	fmt.Fprintf(out, "  Updated:      %s\n", formatTimestamp(job.UpdatedAt))
	if job.LockedBy != "" {
		fmt.Fprintf(out, "  Worker:       %s\n", job.LockedBy)
	}
	if job.RunAfter != nil {
		fmt.Fprintf(out, "  Run after:    %s\n", formatTimestamp(*job.RunAfter))
	}
	if job.ErrorCode != "" {
		fmt.Fprintf(out, "  Error code:   %s\n", job.ErrorCode)
		fmt.Fprintf(out, "  Last error:   %s\n", job.LastError)
	}
	if job.ProducedID != "" {
		fmt.Fprintf(out, "  Produced id:  %s\n", job.ProducedID)
	}
	fmt.Fprintf(out, "  Input:        %s\n", compactJSON(job.InputJSON))
	if job.OutputJSON != "" {
		fmt.Fprintf(out, "  Output:       %s\n", compactJSON(job.OutputJSON))
	}
	return nil
}

func compactJSON(raw string) string {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	compact, err := json.Marshal(value)
	if err != nil {
		return raw
	}
	return string(compact)
}
