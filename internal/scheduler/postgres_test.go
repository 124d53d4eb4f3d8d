package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Non-UUID ids never reach the uuid columns
func TestPostgresRepository_MalformedIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(nil)

	_, err := repo.Get(ctx, "foo")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "foo"), contracts.ErrNotFound)
	assert.ErrorIs(t, repo.Put(ctx, &contracts.Schedule{UniverseID: "foo"}), contracts.ErrNotFound)
	assert.ErrorIs(t, repo.AppendExecution(ctx, contracts.ScheduleExecution{ScheduleID: "foo"}), contracts.ErrNotFound)
}
