package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/aegis/v13/timeline/pkg/config"
)

func TestNew(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	if !status.Healthy {
		t.Error("Expected database to be healthy")
	}

	if status.Stats.MaxConns == 0 {
		t.Error("Expected MaxConns to be greater than 0")
	}
}

func TestRunMigrations(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	if err := RunMigrations(url); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// idempotent
	if err := RunMigrations(url); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}

	version, dirty, err := MigrationVersion(url)
	if err != nil {
		t.Fatalf("MigrationVersion failed: %v", err)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}
	if version < 4 {
		t.Errorf("Expected version >= 4, got %d", version)
	}
}

func TestNewWithInvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:             "invalid://url",
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("Expected error with invalid database URL, got nil")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_universe_snapshot_date"}
	fk := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name       string
		err        error
		wantUnique bool
		wantFK     bool
	}{
		{"unique", unique, true, false},
		{"wrapped unique", fmt.Errorf("insert snapshot: %w", unique), true, false},
		{"foreign key", fk, false, true},
		{"plain error", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.wantUnique {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.wantUnique)
			}
			if got := IsForeignKeyViolation(tt.err); got != tt.wantFK {
				t.Errorf("IsForeignKeyViolation() = %v, want %v", got, tt.wantFK)
			}
		})
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"8f14e45f-ceea-467a-9575-8e2b3a8d1c2e", true},
		{"8F14E45F-CEEA-467A-9575-8E2B3A8D1C2E", true},
		{"foo", false},
		{"", false},
		{"8f14e45f-ceea-467a-9575", false},
	}
	for _, tt := range tests {
		if got := IsUUID(tt.id); got != tt.want {
			t.Errorf("IsUUID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
