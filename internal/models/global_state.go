package models

import "time"

const GlobalStateID = 1

// GlobalState is a single row holding bot state that must survive restarts.
type GlobalState struct {
	ID           int `gorm:"primaryKey;autoIncrement:false"`
	LastUpdateID int

	LastBroadcastAt        time.Time
	LastBroadcastMessageID int

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
