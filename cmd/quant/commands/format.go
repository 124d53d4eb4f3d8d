package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintSnapshot prints one snapshot summary
func PrintSnapshot(rec *contracts.SnapshotRecord) {
	PrintHeader("Snapshot " + calendar.Format(rec.SnapshotDate))
	PrintKeyValue("ID", rec.ID, 10)
	PrintKeyValue("Universe", rec.UniverseID, 10)
	PrintKeyValue("Assets", fmt.Sprintf("%d", len(rec.Assets)), 10)
	PrintKeyValue("Turnover", fmt.Sprintf("%.2f%%", rec.TurnoverRate*100), 10)
	PrintKeyValue("Added", strings.Join(rec.AssetsAdded, ", "), 10)
	PrintKeyValue("Removed", strings.Join(rec.AssetsRemoved, ", "), 10)
	PrintSeparator()
	printAssets(rec.Assets)
}

func printAssets(assets contracts.Composition) {
	widths := []int{10, 28, 8, 16}
	PrintTableHeader([]string{"Symbol", "Name", "Weight", "Sector"}, widths)
	for _, a := range assets {
		PrintTableRow([]string{a.Symbol, a.Name, fmt.Sprintf("%.4f", a.Weight), a.SectorOrUnknown()}, widths)
	}
}

// parseDateFlag parses a YYYY-MM-DD flag value; "" yields nil
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := calendar.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}
