package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/scheduler"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스냅샷 스케줄러",
	Long: `예약된 스냅샷을 실행하는 디스패처를 관리합니다.

Subcommands:
  start     - 디스패처 시작 (SCHEDULER_TICK 주기)
  list-due  - 지금 실행 대상인 스케줄 조회
  status    - 전체 스케줄 상태와 다음 실행일

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list-due`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "디스패처 시작",
		Long: `디스패처를 시작합니다.

매 tick마다 ACTIVE 스케줄 중 실행 시각이 지난 것을 찾아
스냅샷을 생성하고 실행 이력을 기록합니다.
놓친 실행은 하나로 합쳐 최신 예정일로 한 번만 실행합니다.

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListDueCmd = &cobra.Command{
		Use:   "list-due",
		Short: "실행 대상 스케줄 조회",
		RunE:  listDueSchedules,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "스케줄 상태 조회",
		RunE:  showScheduleStatus,
	}
)

var (
	schedulerRetries int
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListDueCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerStartCmd.Flags().IntVar(&schedulerRetries, "retries", 1, "tick 실패 시 재시도 횟수")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Timeline Scheduler ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	runner := scheduler.NewRunner(a.log,
		scheduler.WithRetries(schedulerRetries, 5*time.Second),
		scheduler.WithJobTimeout(10*time.Minute),
	)
	job := a.dispatchJob()
	if err := runner.AddJob(job); err != nil {
		return fmt.Errorf("register dispatcher: %w", err)
	}

	runner.Start()

	PrintSuccess("Scheduler started")
	fmt.Printf("  %s (%s)\n", job.Name(), job.Schedule())
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	runner.Stop()

	for _, st := range runner.Stats() {
		fmt.Printf("  %s: %d runs, %d failures\n", st.JobName, st.TotalRuns, st.FailureCount)
	}
	fmt.Println("Scheduler stopped")
	return nil
}

func listDueSchedules(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	due, err := a.schedules.DueSchedules(cmd.Context(), now)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Due schedules (%d)", len(due)))
	widths := []int{36, 36, 10, 20}
	PrintTableHeader([]string{"Schedule", "Universe", "Frequency", "Planned"}, widths)
	for _, d := range due {
		PrintTableRow([]string{
			d.Schedule.ID,
			d.Schedule.UniverseID,
			string(d.Schedule.Frequency),
			d.Planned.Format("2006-01-02 15:04 MST"),
		}, widths)
	}
	return nil
}

func showScheduleStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.schedules.List(cmd.Context(), "")
	if err != nil {
		return err
	}

	now := time.Now()
	PrintHeader(fmt.Sprintf("Schedules (%d)", len(all)))
	widths := []int{36, 10, 12, 12, 20}
	PrintTableHeader([]string{"Schedule", "Status", "Failures", "Runs", "Next"}, widths)
	for _, s := range all {
		next := "-"
		if t, ok, err := scheduler.NextExecutionDate(s, now); err == nil && ok {
			next = t.Format("2006-01-02 15:04 MST")
		}
		PrintTableRow([]string{
			s.ID,
			string(s.Status),
			fmt.Sprintf("%d", s.ConsecutiveFailures),
			fmt.Sprintf("%d", len(s.Executions)),
			next,
		}, widths)
	}
	fmt.Printf("\nchecked at %s\n", calendar.Format(now))
	return nil
}
