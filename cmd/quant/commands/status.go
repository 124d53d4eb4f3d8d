package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/pkg/config"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "DB/Redis/마이그레이션 상태 점검",
	Long: `저장소 연결 상태를 점검합니다.

표시 정보:
- PostgreSQL 연결과 풀 통계
- Redis 연결 (비활성 시 disabled)
- 마이그레이션 버전과 dirty 여부

Example:
  go run ./cmd/quant status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	PrintHeader("Aegis Timeline Status")
	healthy := true

	// 1. Database
	db, err := database.New(cfg)
	if err != nil {
		PrintError("database: " + err.Error())
		healthy = false
	} else {
		defer db.Close()
		st, err := db.HealthCheck(ctx)
		if err != nil {
			PrintError("database: " + err.Error())
			healthy = false
		} else {
			PrintSuccess(fmt.Sprintf("database ok (%v, %d/%d conns)", st.ResponseTime, st.Stats.AcquiredConns, st.Stats.MaxConns))
		}
	}

	// 2. Redis
	rdb, err := redis.New(cfg)
	switch {
	case err != nil:
		PrintWarning("redis: " + err.Error())
	case !rdb.Enabled():
		PrintKeyValue("redis", "disabled", 10)
	default:
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			PrintWarning("redis: " + err.Error())
		} else {
			PrintSuccess("redis ok")
		}
	}

	// 3. Migrations
	version, dirty, err := database.MigrationVersion(cfg.Database.URL)
	switch {
	case err != nil:
		PrintError("migrations: " + err.Error())
		healthy = false
	case dirty:
		PrintWarning(fmt.Sprintf("migrations: version %d is dirty", version))
		healthy = false
	case version == 0:
		PrintWarning("migrations: none applied (run `quant migrate up`)")
	default:
		PrintSuccess(fmt.Sprintf("migrations at version %d", version))
	}

	PrintSeparator()
	if !healthy {
		return fmt.Errorf("status check failed")
	}
	return nil
}
