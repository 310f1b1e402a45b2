package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teleluxbot/telelux/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "telelux.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := New(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestProcessedPosts(t *testing.T) {
	ctx := context.Background()
	s := testStorage(t)

	processed, err := s.IsProcessed(ctx, "100")
	require.NoError(t, err)
	assert.False(t, processed)

	post := &models.ProcessedPost{PostID: "100", Handle: "someone", Text: "hello"}
	require.NoError(t, s.MarkProcessed(ctx, post))
	assert.NotEmpty(t, post.ID)

	// Marking twice is a no-op.
	require.NoError(t, s.MarkProcessed(ctx, &models.ProcessedPost{PostID: "100"}))

	processed, err = s.IsProcessed(ctx, "100")
	require.NoError(t, err)
	assert.True(t, processed)

	count, err := s.CountProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	s := testStorage(t)

	banned, err := s.IsBanned(ctx, 1)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, s.AddBan(ctx, &models.BlacklistEntry{
		UserID:      1,
		DisplayName: "A",
		Reason:      "多次离群 (2次)",
		LeaveCount:  2,
		AddedAt:     time.Now().Add(-time.Hour),
	}))
	require.NoError(t, s.AddBan(ctx, &models.BlacklistEntry{UserID: 2, DisplayName: "B", LeaveCount: 2}))

	// Re-adding overwrites instead of duplicating.
	require.NoError(t, s.AddBan(ctx, &models.BlacklistEntry{
		UserID:      1,
		DisplayName: "A2",
		Reason:      "多次离群 (3次)",
		LeaveCount:  3,
	}))

	bans, err := s.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, models.BlacklistAddedBySystem, bans[0].AddedBy)

	var first *models.BlacklistEntry
	for _, b := range bans {
		if b.UserID == 1 {
			first = b
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, "A2", first.DisplayName)
	assert.Equal(t, 3, first.LeaveCount)

	count, err := s.CountBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := s.RemoveBan(ctx, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveBan(ctx, 1)
	require.NoError(t, err)
	assert.False(t, removed)

	banned, err = s.IsBanned(ctx, 2)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestGlobalState(t *testing.T) {
	ctx := context.Background()
	s := testStorage(t)

	state, err := s.GetOrCreateGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.LastUpdateID)

	require.NoError(t, s.UpdateLastUpdate(ctx, 42))
	require.NoError(t, s.UpdateLastUpdate(ctx, 40))

	sentAt := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveBroadcastState(ctx, sentAt, 777))

	state, err = s.GetOrCreateGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, state.LastUpdateID)
	assert.Equal(t, 777, state.LastBroadcastMessageID)
	assert.True(t, sentAt.Equal(state.LastBroadcastAt))
}

func TestCachedStorage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := testStorage(t)
	s := NewCached(inner, rdb)

	processed, err := s.IsProcessed(ctx, "7")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.False(t, mr.Exists(processedKey("7")))

	require.NoError(t, s.MarkProcessed(ctx, &models.ProcessedPost{PostID: "7"}))
	assert.True(t, mr.Exists(processedKey("7")))

	processed, err = s.IsProcessed(ctx, "7")
	require.NoError(t, err)
	assert.True(t, processed)

	// A post known only to the database warms the cache on lookup.
	require.NoError(t, inner.MarkProcessed(ctx, &models.ProcessedPost{PostID: "8"}))
	processed, err = s.IsProcessed(ctx, "8")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, mr.Exists(processedKey("8")))

	// Redis being down degrades to the database.
	mr.Close()
	processed, err = s.IsProcessed(ctx, "7")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestCachedStorageLogsFailedWarmup(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := testStorage(t)
	s := NewCached(inner, rdb)
	require.NoError(t, inner.MarkProcessed(ctx, &models.ProcessedPost{PostID: "9"}))

	hook := logtest.NewGlobal()
	t.Cleanup(func() { logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks)) })

	mr.Close()
	processed, err := s.IsProcessed(ctx, "9")
	require.NoError(t, err)
	assert.True(t, processed)

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.HasPrefix(e.Message, "caching post 9:") {
			warned = true
		}
	}
	assert.True(t, warned, "failed cache write should be logged")
}
