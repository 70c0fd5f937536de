package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sift/internal/queue"
)

func secondsDuration(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func millisDuration(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}

func formatAge(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func printRunningJobs(cmd *cobra.Command, store *queue.Store) error {
	monitor, err := store.RunningJobsMonitor(cmd.Context())
	if err != nil {
		return err
	}
	if len(monitor) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs running")
		return nil
	}
	rows := make([][]string, 0, len(monitor))
	for _, entry := range monitor {
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.JobID),
			entry.WorkerID,
			entry.Stage,
			fmt.Sprintf("%.0f%%", entry.Progress),
			formatAge(entry.HeartbeatAge),
			formatAge(entry.LockedFor),
		})
	}
	out := renderTable(
		[]string{"ID", "Worker", "Stage", "Progress", "Heartbeat", "Running For"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
