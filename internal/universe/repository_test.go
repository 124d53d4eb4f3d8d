package universe

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
)

// Integration test, runs only against a migrated database
func TestRepository(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	require.NoError(t, database.RunMigrations(url))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRepository(pool, nil)
	u := &Universe{
		OwnerID:           "test",
		Name:              "repository test",
		ScreeningCriteria: map[string]interface{}{"exclude_sectors": []string{"Energy"}},
		Assets:            candidates(),
	}
	require.NoError(t, repo.Create(ctx, u))
	t.Cleanup(func() { _ = repo.Delete(ctx, u.ID) })

	ok, err := repo.Exists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, candidates().Symbols(), got.Assets.Symbols())

	comp, criteria, err := repo.CurrentComposition(ctx, u.ID)
	require.NoError(t, err)
	assert.NotContains(t, comp.Symbols(), "XOM")
	assert.Contains(t, criteria, "exclude_sectors")

	require.NoError(t, repo.ReplaceAssets(ctx, u.ID, contracts.Composition{
		{Symbol: "NVDA", Name: "Nvidia", Weight: 1},
	}))
	comp, _, err = repo.CurrentComposition(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, comp.Symbols())

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, _, err = repo.CurrentComposition(ctx, u.ID)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, u.ID), contracts.ErrNotFound))
}

func TestRepository_MalformedIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(nil, nil)
	assets := contracts.Composition{{Symbol: "AAPL", Name: "Apple", Weight: 1}}

	err := repo.ReplaceAssets(ctx, "foo", assets)
	assert.True(t, errors.Is(err, contracts.ErrNotFound), "got %v", err)

	err = repo.Create(ctx, &Universe{ID: "foo", OwnerID: "me", Name: "bad id", Assets: assets})
	assert.True(t, errors.Is(err, contracts.ErrInvalidInput), "got %v", err)
}
