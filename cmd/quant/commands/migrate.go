package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/pkg/config"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 마이그레이션",
	Long: `내장 SQL 마이그레이션을 적용하거나 되돌립니다.

Example:
  go run ./cmd/quant migrate up
  go run ./cmd/quant migrate down
  go run ./cmd/quant migrate version`,
}

var (
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "모든 마이그레이션 적용",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := database.RunMigrations(url); err != nil {
				return err
			}
			PrintSuccess("Migrations applied")
			return printMigrationVersion(url)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "마지막 마이그레이션 1단계 되돌리기",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := database.RollbackMigrations(url); err != nil {
				return err
			}
			PrintSuccess("Rolled back one migration")
			return printMigrationVersion(url)
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "현재 마이그레이션 버전",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return printMigrationVersion(url)
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Database.URL, nil
}

func printMigrationVersion(url string) error {
	version, dirty, err := database.MigrationVersion(url)
	if err != nil {
		return err
	}
	PrintKeyValue("Version", fmt.Sprintf("%d", version), 10)
	if dirty {
		PrintWarning("database is dirty; fix the failed migration and force the version")
	}
	return nil
}
