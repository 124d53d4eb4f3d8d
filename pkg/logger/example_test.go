package logger_test

import (
	"errors"

	"github.com/wonny/aegis/v13/timeline/pkg/config"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Example_withFields demonstrates structured logging the way services use it
func Example_withFields() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	log := logger.New(cfg).WithComponent("snapshot")

	log.WithFields(map[string]interface{}{
		"universe_id":   "6f1c",
		"snapshot_date": "2024-06-30",
		"turnover_rate": 0.0,
	}).Info("Snapshot created")

	log.WithError(errors.New("duplicate snapshot")).Warn("Snapshot skipped")
}
