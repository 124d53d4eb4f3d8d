// Package report exports universe timelines as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Sheet names
const (
	SheetTimeline    = "Timeline"
	SheetComposition = "Composition"
	SheetSummary     = "Summary"
)

var (
	timelineHeader    = []interface{}{"Date", "Snapshot ID", "Assets", "Turnover", "Added", "Removed"}
	compositionHeader = []interface{}{"Date", "Symbol", "Name", "Weight", "Sector"}
)

// WriteTimelineXLSX renders one row per snapshot, one row per holding, and the
// turnover summary
func WriteTimelineXLSX(w io.Writer, tl *contracts.Timeline) error {
	if tl == nil {
		return contracts.Invalid("timeline", "required")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetTimeline); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetComposition, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	timelineRows := [][]interface{}{timelineHeader}
	compositionRows := [][]interface{}{compositionHeader}
	for _, s := range tl.Snapshots {
		date := calendar.Format(s.SnapshotDate)
		timelineRows = append(timelineRows, []interface{}{
			date,
			s.ID,
			len(s.Assets),
			s.TurnoverRate,
			strings.Join(s.AssetsAdded, ","),
			strings.Join(s.AssetsRemoved, ","),
		})
		for _, a := range s.Assets {
			compositionRows = append(compositionRows, []interface{}{
				date, a.Symbol, a.Name, a.Weight, a.SectorOrUnknown(),
			})
		}
	}

	m := tl.Metrics
	summaryRows := [][]interface{}{
		{"Universe", tl.UniverseID},
		{"Start", calendar.Format(tl.StartDate)},
		{"End", calendar.Format(tl.EndDate)},
		{"Snapshots", len(tl.Snapshots)},
		{"Average turnover", m.AverageTurnover},
		{"Max turnover", m.MaxTurnover},
		{"Core assets", strings.Join(m.CoreAssets, ",")},
		{"Volatile assets", strings.Join(m.VolatileAssets, ",")},
		{"Insufficient data", m.InsufficientData},
	}

	for sheet, rows := range map[string][][]interface{}{
		SheetTimeline:    timelineRows,
		SheetComposition: compositionRows,
		SheetSummary:     summaryRows,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
