package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/report"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/internal/temporal"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "유니버스 스냅샷",
	Long: `유니버스 스냅샷을 생성하고 조회합니다.

Example:
  go run ./cmd/quant snapshot create --universe <id>
  go run ./cmd/quant snapshot latest --universe <id>
  go run ./cmd/quant snapshot at --universe <id> --date 2024-03-15
  go run ./cmd/quant snapshot timeline --universe <id> --start 2024-01-01 --frequency MONTHLY
  go run ./cmd/quant snapshot export --universe <id> --out timeline.xlsx`,
}

var (
	snapshotCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "현재 구성으로 스냅샷 생성",
		RunE:  runSnapshotCreate,
	}

	snapshotLatestCmd = &cobra.Command{
		Use:   "latest",
		Short: "최신 스냅샷 조회",
		RunE:  runSnapshotLatest,
	}

	snapshotAtCmd = &cobra.Command{
		Use:   "at",
		Short: "특정 날짜 기준 구성 조회",
		RunE:  runSnapshotAt,
	}

	snapshotTimelineCmd = &cobra.Command{
		Use:   "timeline",
		Short: "기간별 스냅샷과 회전율",
		RunE:  runSnapshotTimeline,
	}

	snapshotExportCmd = &cobra.Command{
		Use:   "export",
		Short: "타임라인 엑셀 내보내기",
		RunE:  runSnapshotExport,
	}
)

var (
	snapUniverse  string
	snapDate      string
	snapStart     string
	snapEnd       string
	snapFrequency string
	snapForce     bool
	snapOut       string
	snapJSON      bool
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	for _, c := range []*cobra.Command{snapshotCreateCmd, snapshotLatestCmd, snapshotAtCmd, snapshotTimelineCmd, snapshotExportCmd} {
		snapshotCmd.AddCommand(c)
		c.Flags().StringVar(&snapUniverse, "universe", "", "유니버스 ID")
		_ = c.MarkFlagRequired("universe")
		c.Flags().BoolVar(&snapJSON, "json", false, "JSON 출력")
	}

	snapshotCreateCmd.Flags().StringVar(&snapDate, "date", "", "스냅샷 날짜 (기본: 오늘)")
	snapshotCreateCmd.Flags().BoolVar(&snapForce, "force", false, "같은 날짜 스냅샷 덮어쓰기")

	snapshotAtCmd.Flags().StringVar(&snapDate, "date", "", "조회 날짜 (기본: 오늘)")

	for _, c := range []*cobra.Command{snapshotTimelineCmd, snapshotExportCmd} {
		c.Flags().StringVar(&snapStart, "start", "", "시작일")
		c.Flags().StringVar(&snapEnd, "end", "", "종료일")
		c.Flags().StringVar(&snapFrequency, "frequency", "", "DAILY/WEEKLY/MONTHLY/QUARTERLY (기본: 전체)")
	}
	snapshotExportCmd.Flags().StringVar(&snapOut, "out", "", "출력 파일 (.xlsx)")
	_ = snapshotExportCmd.MarkFlagRequired("out")
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", snapDate)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.snapshots.CreateSnapshot(cmd.Context(), snapshot.CreateRequest{
		UniverseID:   snapUniverse,
		SnapshotDate: date,
		Force:        snapForce,
	})
	if err != nil {
		return err
	}
	if snapJSON {
		return PrintJSON(rec)
	}
	PrintSnapshot(rec)
	PrintSuccess("Snapshot created")
	return nil
}

func runSnapshotLatest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.snapshots.Latest(cmd.Context(), snapUniverse)
	if err != nil {
		return err
	}
	if snapJSON {
		return PrintJSON(rec)
	}
	PrintSnapshot(rec)
	return nil
}

func runSnapshotAt(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", snapDate)
	if err != nil {
		return err
	}
	target := calendar.Date(time.Now())
	if date != nil {
		target = *date
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	pit, err := a.resolver.Resolve(cmd.Context(), snapUniverse, target)
	if err != nil {
		return err
	}
	if snapJSON {
		return PrintJSON(pit)
	}

	PrintHeader("Composition at " + calendar.Format(pit.TargetDate))
	PrintKeyValue("Snapshot", pit.SnapshotID, 12)
	PrintKeyValue("From", calendar.Format(pit.SnapshotDate), 12)
	PrintKeyValue("Age", fmt.Sprintf("%d days", pit.DaysSinceSnapshot), 12)
	PrintKeyValue("Confidence", string(pit.Confidence), 12)
	if pit.Confidence == contracts.ConfidenceLow {
		PrintWarning("snapshot is more than a month older than the target date")
	}
	PrintSeparator()
	printAssets(pit.Assets)
	return nil
}

// timelineQuery builds the query from the shared timeline flags
func timelineQuery() (temporal.TimelineQuery, error) {
	q := temporal.TimelineQuery{UniverseID: snapUniverse}
	start, err := parseDateFlag("start", snapStart)
	if err != nil {
		return q, err
	}
	end, err := parseDateFlag("end", snapEnd)
	if err != nil {
		return q, err
	}
	if start != nil {
		q.Start = *start
	}
	if end != nil {
		q.End = *end
	}
	if snapFrequency != "" {
		freq, err := contracts.ParseFrequency(snapFrequency)
		if err != nil {
			return q, err
		}
		q.Frequency = freq
	}
	return q, nil
}

func runSnapshotTimeline(cmd *cobra.Command, args []string) error {
	q, err := timelineQuery()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tl, err := a.resolver.Timeline(cmd.Context(), q)
	if err != nil {
		return err
	}
	if snapJSON {
		return PrintJSON(tl)
	}

	PrintHeader(fmt.Sprintf("Timeline %s (%d snapshots)", tl.UniverseID, len(tl.Snapshots)))
	widths := []int{12, 8, 10, 8, 8}
	PrintTableHeader([]string{"Date", "Assets", "Turnover", "Added", "Removed"}, widths)
	for _, s := range tl.Snapshots {
		PrintTableRow([]string{
			calendar.Format(s.SnapshotDate),
			fmt.Sprintf("%d", len(s.Assets)),
			fmt.Sprintf("%.2f%%", s.TurnoverRate*100),
			fmt.Sprintf("%d", len(s.AssetsAdded)),
			fmt.Sprintf("%d", len(s.AssetsRemoved)),
		}, widths)
	}
	PrintSeparator()
	return PrintJSON(tl.Metrics)
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	q, err := timelineQuery()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tl, err := a.resolver.Timeline(cmd.Context(), q)
	if err != nil {
		return err
	}

	f, err := os.Create(snapOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", snapOut, err)
	}
	defer f.Close()

	if err := report.WriteTimelineXLSX(f, tl); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Exported %d snapshots to %s", len(tl.Snapshots), snapOut))
	return nil
}
