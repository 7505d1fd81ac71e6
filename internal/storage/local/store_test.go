package local

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docparse/docparse/internal/parser"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{BaseDir: t.TempDir(), Enabled: true},
		fixedClock{now: time.Date(2025, 11, 16, 14, 30, 22, 0, time.UTC)})
	require.NoError(t, err)
	return store
}

func TestGenerateKey_Format(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	key := store.GenerateKey("resume.pdf", "550e8400-e29b-41d4-a716-446655440000")
	require.Equal(t, "resume_20251116_143022_550e8400.pdf", key)
}

func TestGenerateKey_SanitizesAndFallsBack(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	key := store.GenerateKey("my résumé (final).pdf", "550e8400-e29b-41d4")
	require.Equal(t, "my_r_sum___final__20251116_143022_550e8400.pdf", key)

	key = store.GenerateKey("noextension", "550e8400-e29b")
	require.True(t, strings.HasSuffix(key, ".bin"), "missing extension falls back to bin: %s", key)

	long := strings.Repeat("a", 80) + ".txt"
	key = store.GenerateKey(long, "550e8400-e29b")
	require.Equal(t, strings.Repeat("a", 50)+"_20251116_143022_550e8400.txt", key)
}

func TestPutGetDelete_RoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	content := []byte("%PDF-1.4 fake resume")

	key, err := store.Put(ctx, content, "resume.pdf", "550e8400-e29b-41d4")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, content, got)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.True(t, stats.Enabled)
	require.Equal(t, 1, stats.TotalFiles)
	require.Equal(t, int64(len(content)), stats.TotalBytes)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, parser.ErrNotFound)
}

func TestDisabledStore_ReturnsSentinel(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Enabled: false}, fixedClock{now: time.Now()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, []byte("x"), "a.txt", "job")
	require.ErrorIs(t, err, parser.ErrStorageDisabled)

	_, err = store.Get(ctx, "a.txt")
	require.ErrorIs(t, err, parser.ErrStorageDisabled)

	require.ErrorIs(t, store.Delete(ctx, "a.txt"), parser.ErrStorageDisabled)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.False(t, stats.Enabled)
}

func TestGet_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Get(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")
}

func TestPut_RepeatUploadsSameNameGetDistinctKeys(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	key1, err := store.Put(ctx, []byte("one"), "resume.pdf", "aaaa1111-x")
	require.NoError(t, err)
	key2, err := store.Put(ctx, []byte("two"), "resume.pdf", "bbbb2222-x")
	require.NoError(t, err)
	require.NotEqual(t, key1, key2)
}
