package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	// Test creating a new in-memory database
	s, err := New(":memory:")
	require.NoError(t, err)
	require.NotNil(t, s)
	defer s.Close()
}

func TestStore_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Nothing stored yet
	token, err := s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.SaveToken(ctx, "T1"))
	token, err = s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", token)

	// Saving again replaces the value
	require.NoError(t, s.SaveToken(ctx, "T2"))
	token, err = s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", token)

	require.NoError(t, s.DeleteToken(ctx))
	token, err = s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	// Deleting twice is fine
	assert.NoError(t, s.DeleteToken(ctx))
}

func TestStore_SaveEmptyToken(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveToken(context.Background(), ""))
}

func TestStore_TokenSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "news-cli.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveToken(ctx, "persisted"))
	require.NoError(t, s.Close())

	reopened, err := New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	token, err := reopened.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestStore_CatalogReplaceAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Catalog(ctx, CatalogCategories, 0)
	assert.ErrorIs(t, err, ErrCatalogStale, "empty cache should be stale")

	require.NoError(t, s.SaveCatalog(ctx, CatalogCategories, []CatalogEntry{
		{ID: 2, Name: "technology"},
		{ID: 1, Name: "Business"},
	}))
	require.NoError(t, s.SaveCatalog(ctx, CatalogSources, []CatalogEntry{
		{ID: 9, Name: "BBC News", BaseURL: "https://www.bbc.co.uk/news"},
	}))

	categories, err := s.Catalog(ctx, CatalogCategories, time.Hour)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Business", categories[0].Name, "entries are ordered by name, case-insensitively")
	assert.Equal(t, "technology", categories[1].Name)

	// Replacing one kind leaves the other untouched
	require.NoError(t, s.SaveCatalog(ctx, CatalogCategories, []CatalogEntry{{ID: 3, Name: "Sports"}}))
	categories, err = s.Catalog(ctx, CatalogCategories, 0)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, int64(3), categories[0].ID)

	sources, err := s.Catalog(ctx, CatalogSources, 0)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://www.bbc.co.uk/news", sources[0].BaseURL)
}

func TestStore_CatalogStaleness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fetched := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fetched }
	require.NoError(t, s.SaveCatalog(ctx, CatalogSources, []CatalogEntry{{ID: 1, Name: "Reuters"}}))

	s.now = func() time.Time { return fetched.Add(2 * time.Hour) }

	_, err := s.Catalog(ctx, CatalogSources, time.Hour)
	assert.ErrorIs(t, err, ErrCatalogStale)

	entries, err := s.Catalog(ctx, CatalogSources, 3*time.Hour)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = s.Catalog(ctx, CatalogSources, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "zero max age accepts any age")
}

func TestStore_LookupCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveCatalog(ctx, CatalogCategories, []CatalogEntry{
		{ID: 1, Name: "Business"},
		{ID: 2, Name: "Technology"},
	}))

	tests := []struct {
		name    string
		ref     string
		wantID  int64
		wantErr bool
	}{
		{name: "exact name", ref: "Technology", wantID: 2},
		{name: "case-insensitive name", ref: "business", wantID: 1},
		{name: "numeric id", ref: "2", wantID: 2},
		{name: "padded name", ref: "  technology ", wantID: 2},
		{name: "unknown name", ref: "Sports", wantErr: true},
		{name: "unknown id", ref: "99", wantErr: true},
		{name: "empty", ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.LookupCatalog(ctx, CatalogCategories, tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	// Sources are a separate namespace
	_, err := s.LookupCatalog(ctx, CatalogSources, "Business")
	assert.ErrorIs(t, err, ErrNotFound)
}
