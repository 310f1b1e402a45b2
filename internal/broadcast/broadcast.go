package broadcast

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// MinGap keeps a minute-granular schedule from firing twice in one minute.
const MinGap = 60 * time.Second

type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

type State struct {
	LastSentAt    time.Time
	LastMessageID int
}

// Broadcaster keeps a single copy of a promotional message in the chat and
// refreshes it on hours divisible by periodHours. It has no timer of its own;
// callers poll MaybeFire.
type Broadcaster struct {
	sender      Sender
	chat        *telebot.Chat
	text        string
	periodHours int
	logger      *logrus.Entry

	mu    sync.Mutex
	state State
}

func New(sender Sender, chat *telebot.Chat, text string, periodHours int, state State) *Broadcaster {
	return &Broadcaster{
		sender:      sender,
		chat:        chat,
		text:        text,
		periodHours: periodHours,
		logger:      logrus.WithField("component", "broadcaster"),
		state:       state,
	}
}

func (b *Broadcaster) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *Broadcaster) shouldFireLocked(now time.Time) bool {
	if b.periodHours <= 0 {
		return false
	}
	if now.Hour()%b.periodHours != 0 || now.Minute() != 0 {
		return false
	}
	if !b.state.LastSentAt.IsZero() && now.Sub(b.state.LastSentAt) < MinGap {
		return false
	}
	return true
}

// MaybeFire sends the broadcast if now falls into a firing window.
func (b *Broadcaster) MaybeFire(now time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.shouldFireLocked(now) {
		return false, nil
	}

	msgID, err := b.replaceLocked()
	if err != nil {
		return false, err
	}

	b.state = State{LastSentAt: now, LastMessageID: msgID}
	b.logger.Infof("scheduled broadcast sent at %s (message %d)", now.Format("15:04"), msgID)
	return true, nil
}

// Publish replaces the broadcast immediately, outside the schedule.
func (b *Broadcaster) Publish() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgID, err := b.replaceLocked()
	if err != nil {
		return err
	}

	b.state.LastMessageID = msgID
	b.logger.Infof("manual broadcast sent (message %d)", msgID)
	return nil
}

func (b *Broadcaster) replaceLocked() (int, error) {
	if b.state.LastMessageID != 0 {
		prev := &telebot.StoredMessage{
			MessageID: strconv.Itoa(b.state.LastMessageID),
			ChatID:    b.chat.ID,
		}
		if err := b.sender.Delete(prev); err != nil {
			b.logger.Warnf("failed to delete previous broadcast %d: %v", b.state.LastMessageID, err)
		}
	}

	msg, err := b.sender.Send(b.chat, b.text, telebot.ModeHTML, telebot.NoPreview)
	if err != nil {
		return 0, fmt.Errorf("sending broadcast: %w", err)
	}
	return msg.ID, nil
}
