package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teleluxbot/telelux/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&models.BlacklistEntry{},
		&models.ProcessedPost{},
		&models.GlobalState{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *Storage) GetOrCreateGlobalState(ctx context.Context) (*models.GlobalState, error) {
	state := &models.GlobalState{ID: models.GlobalStateID}
	if err := s.db.
		WithContext(ctx).
		Where(models.GlobalState{ID: models.GlobalStateID}).
		FirstOrCreate(state).
		Error; err != nil {
		return nil, fmt.Errorf("getting global state: %w", err)
	}
	return state, nil
}

func (s *Storage) UpdateLastUpdate(ctx context.Context, updateID int) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.GlobalState{}).
		Where("id = ? AND last_update_id < ?", models.GlobalStateID, updateID).
		Update("last_update_id", updateID).
		Error; err != nil {
		return fmt.Errorf("updating last update: %w", err)
	}
	return nil
}

func (s *Storage) SaveBroadcastState(ctx context.Context, sentAt time.Time, messageID int) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.GlobalState{}).
		Where("id = ?", models.GlobalStateID).
		Updates(map[string]any{
			"last_broadcast_at":         sentAt,
			"last_broadcast_message_id": messageID,
		}).
		Error; err != nil {
		return fmt.Errorf("saving broadcast state: %w", err)
	}
	return nil
}

func (s *Storage) IsProcessed(ctx context.Context, postID string) (bool, error) {
	var count int64
	if err := s.db.
		WithContext(ctx).
		Model(&models.ProcessedPost{}).
		Where("post_id = ?", postID).
		Count(&count).
		Error; err != nil {
		return false, fmt.Errorf("checking post: %w", err)
	}
	return count > 0, nil
}

func (s *Storage) MarkProcessed(ctx context.Context, post *models.ProcessedPost) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}},
			DoNothing: true,
		}).
		Create(post).
		Error; err != nil {
		return fmt.Errorf("marking post processed: %w", err)
	}
	return nil
}

func (s *Storage) CountProcessed(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProcessedPost{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return count, nil
}

func (s *Storage) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var entry models.BlacklistEntry
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("getting blacklist entry: %w", err)
	}
	return true, nil
}

// AddBan inserts the entry or overwrites the existing one for the same user.
func (s *Storage) AddBan(ctx context.Context, entry *models.BlacklistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.AddedBy == "" {
		entry.AddedBy = models.BlacklistAddedBySystem
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}

	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name",
				"handle",
				"reason",
				"leave_count",
				"added_by",
				"added_at",
			}),
		}).
		Create(entry).
		Error; err != nil {
		return fmt.Errorf("adding blacklist entry: %w", err)
	}
	return nil
}

func (s *Storage) RemoveBan(ctx context.Context, userID int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.BlacklistEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("removing blacklist entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Storage) ListBans(ctx context.Context) ([]*models.BlacklistEntry, error) {
	var result []*models.BlacklistEntry
	if err := s.db.
		WithContext(ctx).
		Order("added_at DESC").
		Limit(100).
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	return result, nil
}

func (s *Storage) CountBans(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.BlacklistEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting blacklist: %w", err)
	}
	return count, nil
}
