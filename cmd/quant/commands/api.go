package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wonny/aegis/v13/timeline/internal/api"
	"github.com/wonny/aegis/v13/timeline/internal/api/handlers"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 스냅샷 생성/조회, 시점 구성 조회, 백필 엔드포인트 제공
- 스케줄과 전환 계획 관리 엔드포인트 제공
- /ws/timeline 웹소켓으로 스냅샷 이벤트 전송

Endpoints:
  GET  /health
  GET  /metrics
  GET  /ws/timeline?universe_id=<id>
  POST /api/universes/{id}/snapshots
  GET  /api/universes/{id}/composition?date=YYYY-MM-DD
  POST /api/universes/{id}/backfill
  POST /api/schedules
  POST /api/transitions

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

// healthCheck reports database and redis status
func (a *app) healthCheck(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}

	dbStatus, dbErr := a.db.HealthCheck(ctx)
	out["database"] = dbStatus

	redisStatus := "disabled"
	if a.redis.Enabled() {
		redisStatus = "ok"
		if err := a.redis.Ping(ctx); err != nil {
			// redis 장애는 degraded가 아님 (캐시만 비활성)
			redisStatus = "error: " + err.Error()
		}
	}
	out["redis"] = redisStatus

	return out, dbErr
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Timeline API Server ===")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	routes := api.Routes{
		Snapshots:   handlers.NewSnapshotHandler(a.snapshots, a.resolver, a.backfill, a.universes, log),
		Schedules:   handlers.NewScheduleHandler(a.schedules, log),
		Transitions: handlers.NewTransitionHandler(a.transitions, a.analyzer, log),
		Realtime:    a.hub,
		Health:      a.healthCheck,
		Limiter: api.NewClientLimiter(
			a.cfg.API.RateLimitRPS,
			a.cfg.API.RateLimitBurst,
			redis.NewRateLimiter(a.redis, "timeline"),
			log,
		),
	}
	if a.cfg.MetricsEnabled {
		routes.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	server := api.New(a.cfg, log, api.NewRouter(routes, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
