package models

import (
	"fmt"
	"time"
)

const BlacklistAddedBySystem = "system"

type BlacklistEntry struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID int64  `gorm:"uniqueIndex"`

	DisplayName string
	Handle      string
	Reason      string
	LeaveCount  int
	AddedBy     string

	AddedAt time.Time `gorm:"index"`
}

func (b *BlacklistEntry) String() string {
	return fmt.Sprintf("BlacklistEntry(%d, %q, leaves=%d)", b.UserID, b.DisplayName, b.LeaveCount)
}
