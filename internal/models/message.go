package models

import (
	"fmt"
	"strconv"
	"time"
)

// WelcomeMessage references a sent greeting that is still due for deletion.
type WelcomeMessage struct {
	ChatID      int64
	MessageID   int
	UserID      int64
	DisplayName string
	SentAt      time.Time
}

func (m *WelcomeMessage) MessageSig() (string, int64) {
	return strconv.Itoa(m.MessageID), m.ChatID
}

func (m *WelcomeMessage) String() string {
	return fmt.Sprintf(
		"WelcomeMessage(%d, %d, %d, %q)",
		m.MessageID,
		m.ChatID,
		m.UserID,
		m.DisplayName,
	)
}
