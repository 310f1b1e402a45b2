package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/models"
)

const processedKeyTTL = 30 * 24 * time.Hour

// CachedStorage answers processed-post lookups from redis before hitting the
// database. Everything else goes straight to Storage.
type CachedStorage struct {
	*Storage
	rdb *redis.Client
}

func NewCached(inner *Storage, rdb *redis.Client) *CachedStorage {
	return &CachedStorage{Storage: inner, rdb: rdb}
}

func processedKey(postID string) string {
	return fmt.Sprintf("telelux:post:%s", postID)
}

func (s *CachedStorage) IsProcessed(ctx context.Context, postID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, processedKey(postID)).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		logrus.WithField("component", "ledger_cache").Warnf("redis lookup for %s failed: %v", postID, err)
	}

	processed, err := s.Storage.IsProcessed(ctx, postID)
	if err != nil {
		return false, err
	}
	if processed {
		if err := s.rdb.Set(ctx, processedKey(postID), 1, processedKeyTTL).Err(); err != nil {
			logrus.WithField("component", "ledger_cache").Warnf("caching post %s: %v", postID, err)
		}
	}
	return processed, nil
}

func (s *CachedStorage) MarkProcessed(ctx context.Context, post *models.ProcessedPost) error {
	if err := s.Storage.MarkProcessed(ctx, post); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, processedKey(post.PostID), 1, processedKeyTTL).Err(); err != nil {
		logrus.WithField("component", "ledger_cache").Warnf("caching post %s: %v", post.PostID, err)
	}
	return nil
}
