package transition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Non-UUID ids never reach the uuid columns
func TestPostgresRepository_MalformedIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(nil)

	_, err := repo.Get(ctx, "foo")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "foo"), contracts.ErrNotFound)
	assert.ErrorIs(t, repo.Put(ctx, &contracts.TransitionPlan{UniverseID: "foo"}), contracts.ErrNotFound)

	plans, err := repo.List(ctx, "foo")
	require.NoError(t, err)
	assert.Empty(t, plans)

	m := NewManager(newPlanner(), repo, nil, nil)
	_, err = m.Cancel(ctx, "foo")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}
