package sessionstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		LocalPath:  "/home/u/photos/holiday.jpg",
		SessionURL: "https://example/session/abc",
		Offset:     2500,
		Size:       5000,
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, "/home/u/photos/holiday.jpg")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.SessionURL, got.SessionURL)
	assert.Equal(t, int64(2500), got.Offset)
	assert.Equal(t, int64(5000), got.Size)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load(context.Background(), "/no/such/file")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{LocalPath: "/f", SessionURL: "https://example/s1", Offset: 0, Size: 100}
	require.NoError(t, store.Save(ctx, rec))

	rec.Offset = 80
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, "/f")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(80), got.Offset)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{
		LocalPath: "/f", SessionURL: "https://example/s", Size: 10,
	}))
	require.NoError(t, store.Delete(ctx, "/f"))

	got, err := store.Load(ctx, "/f")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a missing row is not an error.
	require.NoError(t, store.Delete(ctx, "/f"))
}

func TestStore_CleanStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{
		LocalPath:  "/old",
		SessionURL: "https://example/old",
		Size:       10,
		UpdatedAt:  time.Now().Add(-8 * 24 * time.Hour),
	}))
	require.NoError(t, store.Save(ctx, &Record{
		LocalPath:  "/fresh",
		SessionURL: "https://example/fresh",
		Size:       10,
	}))

	n, err := store.CleanStale(ctx, StaleSessionAge)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err := store.Load(ctx, "/old")
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := store.Load(ctx, "/fresh")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}
