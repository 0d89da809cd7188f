package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/barrulus/clepho/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create, list, and cancel durable tasks (§4.9)",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create [target-path]",
	Short: "Create a pending task against target-path",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks",
	RunE:  runScheduleList,
}

var scheduleOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List pending tasks whose scheduled_at has already passed",
	RunE:  runScheduleOverdue,
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleCancel,
}

func init() {
	scheduleCreateCmd.Flags().String("kind", string(store.TaskScan), "scan | llm_batch | face_detection")
	scheduleCreateCmd.Flags().String("at", "", "RFC3339 scheduled time (default: now)")
	scheduleCreateCmd.Flags().Int("hours-start", 0, "hours-of-operation window start (0-23)")
	scheduleCreateCmd.Flags().Int("hours-end", 0, "hours-of-operation window end (0-23)")
	scheduleCreateCmd.Flags().Bool("window", false, "apply --hours-start/--hours-end as a gating window")
	scheduleCreateCmd.Flags().Int64Slice("photo-ids", nil, "restrict an llm_batch/face_detection task to this photo id subset")

	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleOverdueCmd, scheduleCancelCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	at := time.Now()
	if scheduledAt := mustGetString(cmd, "at"); scheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, scheduledAt)
		if err != nil {
			return fmt.Errorf("invalid --at %q: %w", scheduledAt, err)
		}
		at = parsed
	}

	task := store.ScheduledTask{
		Kind:        store.TaskKind(mustGetString(cmd, "kind")),
		TargetPath:  args[0],
		PhotoIDs:    mustGetInt64Slice(cmd, "photo-ids"),
		ScheduledAt: at,
	}
	if mustGetBool(cmd, "window") {
		start := mustGetInt(cmd, "hours-start")
		end := mustGetInt(cmd, "hours-end")
		task.HoursStart = &start
		task.HoursEnd = &end
	}

	id, err := a.Scheduler.CreateTask(ctx, task)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	fmt.Printf("created task %d\n", id)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	tasks, err := a.Store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("listing pending tasks: %w", err)
	}
	printTasks(tasks)
	return nil
}

func runScheduleOverdue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	tasks, err := a.Scheduler.ListOverdue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing overdue tasks: %w", err)
	}
	printTasks(tasks)
	return nil
}

func runScheduleCancel(cmd *cobra.Command, args []string) error {
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid task id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	if err := a.Scheduler.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancelling task %d: %w", id, err)
	}
	fmt.Printf("task %d: cancelled\n", id)
	return nil
}

func printTasks(tasks []store.ScheduledTask) {
	for _, t := range tasks {
		fmt.Printf("%d  %-14s %-10s %s  scheduled=%s\n", t.ID, t.Kind, t.Status, t.TargetPath, t.ScheduledAt.Format(time.RFC3339))
	}
	fmt.Printf("%d task(s)\n", len(tasks))
}
