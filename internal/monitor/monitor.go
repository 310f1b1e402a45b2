package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/teleluxbot/telelux/internal/activity"
	"github.com/teleluxbot/telelux/internal/broadcast"
	"github.com/teleluxbot/telelux/internal/config"
	"github.com/teleluxbot/telelux/internal/filter"
	"github.com/teleluxbot/telelux/internal/logging"
	"github.com/teleluxbot/telelux/internal/models"
	"github.com/teleluxbot/telelux/internal/scheduler"
	"github.com/teleluxbot/telelux/internal/twitter"
	"github.com/teleluxbot/telelux/internal/verification"
	"gopkg.in/telebot.v4"
)

const (
	defaultHandleTimeout      = 10 * time.Second
	defaultWelcomeDeleteDelay = time.Minute
	defaultPollTimeout        = 2 * time.Minute
	congratsDeleteDelay       = 30 * time.Second
	backgroundWorkers         = 4
)

// Bot is the part of the Telegram API the monitor acts through.
type Bot interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
	Restrict(chat *telebot.Chat, member *telebot.ChatMember) error
	Unban(chat *telebot.Chat, user *telebot.User, forBanned ...bool) error
}

type PostSource interface {
	ResolveUserID(ctx context.Context, handle string) (string, error)
	LatestPosts(ctx context.Context, userID, handle string, count int) ([]*twitter.Post, error)
	PostByID(ctx context.Context, postID string) (*twitter.Post, error)
}

type Ledger interface {
	IsProcessed(ctx context.Context, postID string) (bool, error)
	MarkProcessed(ctx context.Context, post *models.ProcessedPost) error
	CountProcessed(ctx context.Context) (int64, error)

	IsBanned(ctx context.Context, userID int64) (bool, error)
	AddBan(ctx context.Context, entry *models.BlacklistEntry) error
	RemoveBan(ctx context.Context, userID int64) (bool, error)
	ListBans(ctx context.Context) ([]*models.BlacklistEntry, error)
	CountBans(ctx context.Context) (int64, error)

	UpdateLastUpdate(ctx context.Context, updateID int) error
	SaveBroadcastState(ctx context.Context, sentAt time.Time, messageID int) error
}

type features struct {
	verification atomic.Bool
	adDetection  atomic.Bool
	autoReply    atomic.Bool
	autoForward  atomic.Bool
}

type counters struct {
	joins          atomic.Int64
	leaves         atomic.Int64
	adsDeleted     atomic.Int64
	verified       atomic.Int64
	kicked         atomic.Int64
	autoReplies    atomic.Int64
	forwarded      atomic.Int64
	postsDelivered atomic.Int64
}

type Option func(m *Monitor)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithRecentLogs backs the logs command.
func WithRecentLogs(hook *logging.RecentHook) Option {
	return func(m *Monitor) {
		m.logs = hook
	}
}

type Monitor struct {
	config *config.Config
	ledger Ledger
	bot    Bot
	posts  PostSource
	clock  clockwork.Clock
	logs   *logging.RecentHook

	group *telebot.Chat
	admin *telebot.Chat

	activity    *activity.Store
	adFilter    *filter.AdFilter
	replies     *filter.AutoReplies
	verifier    *verification.Verifier
	scheduler   *scheduler.Scheduler
	broadcaster *broadcast.Broadcaster
	commands    []*command

	ctx       context.Context
	cancel    context.CancelFunc
	pool      *pool.Pool
	closeOnce sync.Once

	// Serializes activity record mutations.
	memberMu sync.Mutex

	welcomeMu sync.Mutex
	welcome   []*models.WelcomeMessage

	pollMu       sync.Mutex
	lastPoll     time.Time
	sourceUserID string
	pollInterval atomic.Int64

	features  features
	stats     counters
	startedAt time.Time
}

func New(
	cfg *config.Config,
	ledger Ledger,
	bot Bot,
	posts PostSource,
	broadcastState broadcast.State,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		config: cfg,
		ledger: ledger,
		bot:    bot,
		posts:  posts,
		clock:  clockwork.NewRealClock(),
		group:  &telebot.Chat{ID: cfg.ChatID},
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.AdminChatID != 0 {
		m.admin = &telebot.Chat{ID: cfg.AdminChatID}
	}

	m.activity = activity.NewStore(cfg.ActivityMaxSize, cfg.ActivityCleanupThreshold)
	m.adFilter = filter.NewAdFilter(
		append(append([]string{}, filter.DefaultAdKeywords...), cfg.AdKeywords...),
		append([]string{cfg.OperatorHandle, cfg.TwitterUsername, cfg.OrderBotHandle}, cfg.AdWhitelist...),
	)
	m.replies = filter.NewAutoReplies(defaultReplyRules(cfg))
	m.verifier = verification.New(m.clock, cfg.VerificationTimeout)
	m.scheduler = scheduler.New(m.clock, 0)

	text := cfg.BroadcastText
	if strings.TrimSpace(text) == "" {
		text = businessInfoText(cfg)
	}
	m.broadcaster = broadcast.New(bot, m.group, text, cfg.BroadcastPeriodHours, broadcastState)
	m.commands = m.buildCommands()

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.pool = pool.New().WithMaxGoroutines(backgroundWorkers)

	m.features.verification.Store(cfg.FeatureVerification)
	m.features.adDetection.Store(cfg.FeatureAdDetection)
	m.features.autoReply.Store(cfg.FeatureAutoReply)
	m.features.autoForward.Store(cfg.FeatureAutoForward)
	m.pollInterval.Store(int64(cfg.PollInterval))
	m.startedAt = m.clock.Now()

	return m
}

func (m *Monitor) HandleAnyUpdate(c telebot.Context) error {
	timeout := m.config.BotHandleTimeout
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	m.HandleUpdate(ctx, c.Update())
	return nil
}

func (m *Monitor) HandleUpdate(ctx context.Context, upd telebot.Update) {
	uc := NewUpdateContext(ctx, upd)

	if err := m.ledger.UpdateLastUpdate(uc, upd.ID); err != nil {
		uc.L().Errorf("failed to update last update: %v", err)
	}

	switch {
	case upd.ChatMember != nil:
		m.HandleMemberUpdate(uc)
	case upd.Message != nil && upd.Message.Text != "":
		m.HandleText(uc)
	default:
		uc.L().Debugf("ignoring update without text or member change")
	}
}

// AnnounceStartup and AnnounceShutdown tell the group the bot came up or is
// going away. Failures are only logged.
func (m *Monitor) AnnounceStartup() {
	m.announce(startupText(m.config))
}

func (m *Monitor) AnnounceShutdown() {
	m.announce(shutdownText)
}

func (m *Monitor) announce(text string) {
	if !m.config.AnnounceLifecycle {
		return
	}
	if _, err := m.bot.Send(m.group, text, telebot.ModeHTML, telebot.NoPreview); err != nil {
		logrus.WithField("component", "monitor").Errorf("failed to announce to the group: %v", err)
	}
}

// Close stops the timers and waits for background work to finish.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.scheduler.Stop()
		m.pool.Wait()
	})
}

func (m *Monitor) PollInterval() time.Duration {
	return time.Duration(m.pollInterval.Load())
}

// isOperator trusts the admin chat id only. Usernames can be released and
// claimed by someone else.
func (m *Monitor) isOperator(user *telebot.User) bool {
	return user != nil && m.config.AdminChatID != 0 && user.ID == m.config.AdminChatID
}

func (m *Monitor) welcomeDeleteDelay() time.Duration {
	return welcomeDelay(m.config)
}

func welcomeDelay(cfg *config.Config) time.Duration {
	if cfg.WelcomeDeleteDelay > 0 {
		return cfg.WelcomeDeleteDelay
	}
	return defaultWelcomeDeleteDelay
}

func (m *Monitor) notifyAdmin(log *logrus.Entry, text string) {
	if m.admin == nil {
		log.Warnf("admin_chat_id is not configured, dropping notification")
		return
	}
	if _, err := m.bot.Send(m.admin, text, telebot.ModeHTML, telebot.NoPreview); err != nil {
		log.Errorf("failed to notify admin: %v", err)
	}
}

func (m *Monitor) reply(uc *UpdateContext, text string) {
	if _, err := m.bot.Send(uc.Chat(), text, telebot.ModeHTML, telebot.NoPreview); err != nil {
		uc.L().Errorf("failed to reply: %v", err)
	}
}

// scheduleDelete removes msg after delay. Messages that are already gone
// are not an error.
func (m *Monitor) scheduleDelete(delay time.Duration, name string, msg telebot.Editable) {
	m.scheduler.Schedule(delay, name, func(ctx context.Context) {
		if err := m.bot.Delete(msg); err != nil && !isMessageGone(err) {
			logrus.WithField("component", "monitor").Warnf("%s: failed to delete %v: %v", name, msg, err)
		}
	})
}

func (m *Monitor) addWelcome(ref *models.WelcomeMessage) {
	m.welcomeMu.Lock()
	defer m.welcomeMu.Unlock()
	m.welcome = append(m.welcome, ref)
}

func (m *Monitor) removeWelcome(ref *models.WelcomeMessage) bool {
	m.welcomeMu.Lock()
	defer m.welcomeMu.Unlock()
	for i, w := range m.welcome {
		if w == ref {
			m.welcome = append(m.welcome[:i], m.welcome[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Monitor) welcomeCount() int {
	m.welcomeMu.Lock()
	defer m.welcomeMu.Unlock()
	return len(m.welcome)
}

func (m *Monitor) deleteWelcome(ref *models.WelcomeMessage) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "monitor",
		"user_id":   ref.UserID,
	})

	if !m.removeWelcome(ref) {
		logger.Debugf("welcome message %v was already cleared", ref)
		return
	}

	err := m.bot.Delete(ref)
	switch {
	case err == nil:
		logger.Infof("deleted welcome message %v", ref)
	case isMessageGone(err):
		logger.Debugf("welcome message %v is already gone", ref)
	default:
		logger.Warnf("failed to delete welcome message %v: %v", ref, err)
	}
}

// clearWelcomes deletes every tracked welcome message.
func (m *Monitor) clearWelcomes() (cleared, failed int) {
	m.welcomeMu.Lock()
	refs := m.welcome
	m.welcome = nil
	m.welcomeMu.Unlock()

	for _, ref := range refs {
		if err := m.bot.Delete(ref); err != nil && !isMessageGone(err) {
			logrus.WithField("component", "monitor").Warnf("failed to delete welcome message %v: %v", ref, err)
			failed++
			continue
		}
		cleared++
	}
	return cleared, failed
}

func isMessageGone(err error) bool {
	if errors.Is(err, telebot.ErrNotFoundToDelete) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message to delete not found")
}

func displayName(user *telebot.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	switch {
	case name != "":
		return name
	case user.Username != "":
		return user.Username
	default:
		return fmt.Sprintf("用户%d", user.ID)
	}
}
