package models

import "time"

type ProcessedPost struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	PostID string `gorm:"uniqueIndex"`

	Handle   string
	URL      string
	Text     string
	PostedAt time.Time

	ProcessedAt time.Time `gorm:"autoCreateTime;index"`
}
