package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/scheduler"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "스냅샷 스케줄 관리",
	Long: `유니버스별 스냅샷 스케줄을 생성하고 상태를 바꿉니다.

Example:
  go run ./cmd/quant schedule create --universe <id> --frequency WEEKLY --start 2024-01-01
  go run ./cmd/quant schedule create --universe <id> --frequency CUSTOM --start 2024-01-01 --meta cron="0 9 * * 1-5"
  go run ./cmd/quant schedule pause <schedule_id>
  go run ./cmd/quant schedule stats <schedule_id>`,
}

var (
	scheduleCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "스케줄 생성",
		RunE:  runScheduleCreate,
	}

	schedulePauseCmd = &cobra.Command{
		Use:   "pause [schedule_id]",
		Short: "스케줄 일시정지",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeSchedule(cmd, args[0], (*scheduler.Manager).Pause)
		},
	}

	scheduleResumeCmd = &cobra.Command{
		Use:   "resume [schedule_id]",
		Short: "스케줄 재개",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeSchedule(cmd, args[0], (*scheduler.Manager).Resume)
		},
	}

	scheduleDeleteCmd = &cobra.Command{
		Use:   "delete [schedule_id]",
		Short: "스케줄 삭제 (스냅샷은 유지)",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleDelete,
	}

	scheduleStatsCmd = &cobra.Command{
		Use:   "stats [schedule_id]",
		Short: "실행 통계",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleStats,
	}
)

var (
	schUniverse  string
	schFrequency string
	schStart     string
	schEnd       string
	schTime      string
	schTimezone  string
	schMeta      []string
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(schedulePauseCmd)
	scheduleCmd.AddCommand(scheduleResumeCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleStatsCmd)

	f := scheduleCreateCmd.Flags()
	f.StringVar(&schUniverse, "universe", "", "유니버스 ID")
	f.StringVar(&schFrequency, "frequency", "MONTHLY", "DAILY/WEEKLY/MONTHLY/QUARTERLY/CUSTOM")
	f.StringVar(&schStart, "start", "", "시작일 (YYYY-MM-DD)")
	f.StringVar(&schEnd, "end", "", "종료일 (선택)")
	f.StringVar(&schTime, "time", scheduler.DefaultExecutionTime, "실행 시각 HH:MM")
	f.StringVar(&schTimezone, "timezone", scheduler.DefaultTimezone, "IANA 시간대")
	f.StringArrayVar(&schMeta, "meta", nil, "key=value (CUSTOM: cron 또는 interval_days)")
	_ = scheduleCreateCmd.MarkFlagRequired("universe")
	_ = scheduleCreateCmd.MarkFlagRequired("start")
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--meta %q: expected key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return out, nil
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	start, err := calendar.ParseDate(schStart)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := parseDateFlag("end", schEnd)
	if err != nil {
		return err
	}
	meta, err := parseMeta(schMeta)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.schedules.Create(cmd.Context(), scheduler.CreateRequest{
		UniverseID:    schUniverse,
		Frequency:     schFrequency,
		StartDate:     start,
		EndDate:       end,
		ExecutionTime: schTime,
		TimezoneName:  schTimezone,
		Metadata:      meta,
	})
	if err != nil {
		return err
	}

	PrintSuccess("Schedule created")
	PrintKeyValue("ID", s.ID, 10)
	PrintKeyValue("Cadence", scheduler.Describe(s), 10)
	return nil
}

func changeSchedule(cmd *cobra.Command, id string, change func(*scheduler.Manager, context.Context, string) (*contracts.Schedule, error)) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := change(a.schedules, cmd.Context(), id)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Schedule %s is %s", s.ID, s.Status))
	return nil
}

func runScheduleDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.schedules.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	PrintSuccess("Schedule deleted")
	return nil
}

func runScheduleStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.schedules.Statistics(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	PrintHeader("Schedule " + stats.ScheduleID)
	PrintKeyValue("Total", fmt.Sprintf("%d", stats.TotalExecutions), 12)
	PrintKeyValue("Success", fmt.Sprintf("%d", stats.SuccessfulExecutions), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", stats.FailedExecutions), 12)
	PrintKeyValue("Rate", fmt.Sprintf("%.1f%%", stats.SuccessRate*100), 12)
	PrintKeyValue("Avg delay", fmt.Sprintf("%.0fs", stats.AverageDelaySeconds), 12)
	if last := stats.LastExecution; last != nil {
		PrintKeyValue("Last", fmt.Sprintf("%s (%s)", calendar.Format(last.PlannedDate), last.Status), 12)
	}
	return nil
}
