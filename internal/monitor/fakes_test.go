package monitor

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/teleluxbot/telelux/internal/models"
	"github.com/teleluxbot/telelux/internal/twitter"
	"gopkg.in/telebot.v4"
)

type sentMessage struct {
	chatID int64
	id     int
	what   interface{}
	text   string
	opts   []interface{}
}

type restriction struct {
	userID int64
	rights telebot.Rights
}

type fakeBot struct {
	mu         sync.Mutex
	nextID     int
	sent       []sentMessage
	deleted    []int
	restricted []restriction
	kicked     []int64

	sendErr   func(to int64, what interface{}) error
	deleteErr error
}

func (b *fakeBot) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chat := to.(*telebot.Chat)
	if b.sendErr != nil {
		if err := b.sendErr(chat.ID, what); err != nil {
			return nil, err
		}
	}

	b.nextID++
	msg := sentMessage{chatID: chat.ID, id: b.nextID, what: what, opts: opts}
	switch v := what.(type) {
	case string:
		msg.text = v
	case *telebot.Photo:
		msg.text = v.Caption
	}
	b.sent = append(b.sent, msg)
	return &telebot.Message{ID: b.nextID, Chat: chat}, nil
}

func (b *fakeBot) Delete(msg telebot.Editable) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig, _ := msg.MessageSig()
	msgID, _ := strconv.Atoi(sig)
	b.deleted = append(b.deleted, msgID)
	return b.deleteErr
}

func (b *fakeBot) Restrict(chat *telebot.Chat, member *telebot.ChatMember) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restricted = append(b.restricted, restriction{userID: member.User.ID, rights: member.Rights})
	return nil
}

func (b *fakeBot) Unban(chat *telebot.Chat, user *telebot.User, forBanned ...bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kicked = append(b.kicked, user.ID)
	return nil
}

func (b *fakeBot) sentTo(chatID int64) []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var res []sentMessage
	for _, m := range b.sent {
		if m.chatID == chatID {
			res = append(res, m)
		}
	}
	return res
}

func (b *fakeBot) lastTo(chatID int64) sentMessage {
	msgs := b.sentTo(chatID)
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

func (b *fakeBot) deletedIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.deleted...)
}

func (b *fakeBot) kickedIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.kicked...)
}

func (b *fakeBot) restrictions() []restriction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]restriction(nil), b.restricted...)
}

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]*models.ProcessedPost
	bans      map[int64]*models.BlacklistEntry

	lastUpdateID   int
	broadcastAt    time.Time
	broadcastMsgID int

	isProcessedErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		processed: make(map[string]*models.ProcessedPost),
		bans:      make(map[int64]*models.BlacklistEntry),
	}
}

func (l *fakeLedger) IsProcessed(_ context.Context, postID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isProcessedErr != nil {
		return false, l.isProcessedErr
	}
	_, ok := l.processed[postID]
	return ok, nil
}

func (l *fakeLedger) MarkProcessed(_ context.Context, post *models.ProcessedPost) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.processed[post.PostID]; !ok {
		l.processed[post.PostID] = post
	}
	return nil
}

func (l *fakeLedger) CountProcessed(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.processed)), nil
}

func (l *fakeLedger) IsBanned(_ context.Context, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bans[userID]
	return ok, nil
}

func (l *fakeLedger) AddBan(_ context.Context, entry *models.BlacklistEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bans[entry.UserID] = entry
	return nil
}

func (l *fakeLedger) RemoveBan(_ context.Context, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bans[userID]
	delete(l.bans, userID)
	return ok, nil
}

func (l *fakeLedger) ListBans(context.Context) ([]*models.BlacklistEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]*models.BlacklistEntry, 0, len(l.bans))
	for _, b := range l.bans {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].AddedAt.After(res[j].AddedAt)
	})
	return res, nil
}

func (l *fakeLedger) CountBans(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.bans)), nil
}

func (l *fakeLedger) UpdateLastUpdate(_ context.Context, updateID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUpdateID = max(l.lastUpdateID, updateID)
	return nil
}

func (l *fakeLedger) SaveBroadcastState(_ context.Context, sentAt time.Time, messageID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastAt = sentAt
	l.broadcastMsgID = messageID
	return nil
}

func (l *fakeLedger) banList() map[int64]*models.BlacklistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make(map[int64]*models.BlacklistEntry, len(l.bans))
	for k, v := range l.bans {
		res[k] = v
	}
	return res
}

type fakePosts struct {
	mu           sync.Mutex
	userID       string
	latest       []*twitter.Post
	byID         map[string]*twitter.Post
	resolveCalls int
	latestCalls  int
}

var errFakeNotFound = errors.New("no such post")

func (p *fakePosts) ResolveUserID(_ context.Context, handle string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolveCalls++
	return p.userID, nil
}

func (p *fakePosts) LatestPosts(_ context.Context, userID, handle string, count int) ([]*twitter.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latestCalls++
	if len(p.latest) > count {
		return p.latest[:count], nil
	}
	return p.latest, nil
}

func (p *fakePosts) PostByID(_ context.Context, postID string) (*twitter.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	post, ok := p.byID[postID]
	if !ok {
		return nil, errors.Join(twitter.ErrNotFound, errFakeNotFound)
	}
	return post, nil
}

func (p *fakePosts) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveCalls, p.latestCalls
}
