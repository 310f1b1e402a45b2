package broadcast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

type fakeSender struct {
	nextID  int
	sent    []string
	deleted []string
	sendErr error
	delErr  error
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, what.(string))
	return &telebot.Message{ID: f.nextID}, nil
}

func (f *fakeSender) Delete(msg telebot.Editable) error {
	id, _ := msg.MessageSig()
	f.deleted = append(f.deleted, id)
	return f.delErr
}

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 3, 10, hour, minute, second, 0, time.Local)
}

func TestMaybeFireWindows(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		sender := &fakeSender{}
		b := New(sender, &telebot.Chat{ID: -1}, "promo", 3, State{})

		sent, err := b.MaybeFire(at(hour, 0, 5))
		require.NoError(t, err)
		assert.Equal(t, hour%3 == 0, sent, "hour %d", hour)
	}

	sender := &fakeSender{}
	b := New(sender, &telebot.Chat{ID: -1}, "promo", 3, State{})
	sent, err := b.MaybeFire(at(3, 1, 0))
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestMaybeFireOncePerMinute(t *testing.T) {
	sender := &fakeSender{}
	b := New(sender, &telebot.Chat{ID: -1}, "promo", 3, State{})

	sent, err := b.MaybeFire(at(6, 0, 1))
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = b.MaybeFire(at(6, 0, 31))
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, State{LastSentAt: at(6, 0, 1), LastMessageID: 1}, b.State())
}

func TestMaybeFireReplacesPrevious(t *testing.T) {
	sender := &fakeSender{delErr: errors.New("message to delete not found")}
	b := New(sender, &telebot.Chat{ID: -1}, "promo", 3, State{
		LastSentAt:    at(3, 0, 0),
		LastMessageID: 41,
	})

	sent, err := b.MaybeFire(at(6, 0, 0))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"41"}, sender.deleted)
	assert.Equal(t, 1, b.State().LastMessageID)
}

func TestMaybeFireSendFailureKeepsState(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("network down")}
	initial := State{LastSentAt: at(3, 0, 0), LastMessageID: 5}
	b := New(sender, &telebot.Chat{ID: -1}, "promo", 3, initial)

	sent, err := b.MaybeFire(at(6, 0, 0))
	assert.Error(t, err)
	assert.False(t, sent)
	assert.Equal(t, initial, b.State())
}

func TestDisabledAndPublish(t *testing.T) {
	sender := &fakeSender{}
	b := New(sender, &telebot.Chat{ID: -1}, "promo", 0, State{})

	sent, err := b.MaybeFire(at(0, 0, 0))
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, b.Publish())
	require.NoError(t, b.Publish())
	assert.Equal(t, []string{"1"}, sender.deleted)
	assert.Equal(t, 2, b.State().LastMessageID)
	assert.True(t, b.State().LastSentAt.IsZero())
}
