package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/tasks"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [id]",
	Short: "Summarize a note with the configured model",
	Long: `Summarize a note in 3-5 sentences. The summary is stored on the note and
shown by 'notesai get'.

The work runs as a background task; this command waits for it unless
--no-wait is given, in which case the task ID is printed and the task is
picked up the next time 'notesai serve' runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

var (
	summarizeNoWait  bool
	summarizeTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().BoolVar(&summarizeNoWait, "no-wait", false, "Queue the task and return immediately")
	summarizeCmd.Flags().DurationVar(&summarizeTimeout, "timeout", 2*time.Minute, "How long to wait for the summary")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", interrors.ErrInvalidNoteID, args[0])
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	if !summarizeNoWait {
		if err := startWorkers(ctx); err != nil {
			return err
		}
	}

	task, err := svc.Notes.Summarize(ctx, user.ID, id)
	if err != nil {
		return err
	}
	if summarizeNoWait {
		fmt.Printf("Summarization started (task %s)\n", task.ID)
		return nil
	}

	fmt.Println("📝 Summarizing...")
	task, err = waitForTask(ctx, user.ID, task.ID, summarizeTimeout)
	if err != nil {
		return err
	}
	if task.Status == tasks.StatusFailed {
		return fmt.Errorf("summarization failed: %s", deref(task.Error))
	}
	fmt.Println(deref(task.Result))
	return nil
}

func waitForTask(ctx context.Context, userID int, id string, timeout time.Duration) (*tasks.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		t, err := svc.Tasks.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if t.Done() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("task %s still %s: %w", id, t.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
