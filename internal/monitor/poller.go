package monitor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/metrics"
	"github.com/teleluxbot/telelux/internal/models"
	"github.com/teleluxbot/telelux/internal/twitter"
	"gopkg.in/telebot.v4"
)

const pollBatch = 5

var ErrPollInProgress = errors.New("poll already in progress")

func (m *Monitor) RunTicker(ctx context.Context) {
	t := m.clock.NewTicker(m.config.TickInterval)
	defer t.Stop()

	logger := logrus.WithField("component", "monitor_ticker")
	logger.Infof("ticker started, interval %s", m.config.TickInterval)

	for {
		select {
		case <-t.Chan():
			m.Tick(ctx)
		case <-ctx.Done():
			logger.Info("ticker stopped")
			return
		}
	}
}

// Tick runs the periodic broadcast and post poll once.
func (m *Monitor) Tick(ctx context.Context) {
	logger := logrus.WithField("component", "monitor_ticker")

	sent, err := m.broadcaster.MaybeFire(m.clock.Now())
	switch {
	case err != nil:
		logger.Errorf("failed to send scheduled business info: %v", err)
	case sent:
		metrics.Broadcasts.Inc()
		state := m.broadcaster.State()
		logger.Infof("scheduled business info sent, message %d", state.LastMessageID)
		if err := m.ledger.SaveBroadcastState(ctx, state.LastSentAt, state.LastMessageID); err != nil {
			logger.Errorf("failed to save broadcast state: %v", err)
		}
	}

	if _, err := m.PollPosts(ctx, false); err != nil && !errors.Is(err, ErrPollInProgress) {
		logger.Errorf("failed to poll posts: %v", err)
	}
}

// PollPosts delivers posts of the configured account that are not in the
// ledger yet, oldest first. Unless force is set it does nothing until the
// poll interval has passed since the previous poll.
func (m *Monitor) PollPosts(ctx context.Context, force bool) (int, error) {
	if !m.pollMu.TryLock() {
		return 0, ErrPollInProgress
	}
	defer m.pollMu.Unlock()

	now := m.clock.Now()
	if !force && !m.lastPoll.IsZero() && now.Sub(m.lastPoll) < m.PollInterval() {
		return 0, nil
	}
	m.lastPoll = now

	start := time.Now()
	delivered, err := m.pollLocked(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PollDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return delivered, err
}

func (m *Monitor) pollLocked(ctx context.Context) (int, error) {
	logger := logrus.WithField("component", "monitor_poller")
	handle := m.config.TwitterUsername

	if m.sourceUserID == "" {
		id, err := m.posts.ResolveUserID(ctx, handle)
		if err != nil {
			return 0, fmt.Errorf("resolving @%s: %w", handle, err)
		}
		m.sourceUserID = id
	}

	posts, err := m.posts.LatestPosts(ctx, m.sourceUserID, handle, pollBatch)
	if err != nil {
		return 0, fmt.Errorf("fetching posts: %w", err)
	}

	var fresh []*twitter.Post
	for _, p := range posts {
		processed, err := m.ledger.IsProcessed(ctx, p.ID)
		if err != nil {
			logger.Warnf("failed to check post %s, skipping it this time: %v", p.ID, err)
			continue
		}
		if !processed {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		logger.Debugf("no new posts of @%s", handle)
		return 0, nil
	}

	slices.SortStableFunc(fresh, func(a, b *twitter.Post) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		// Numeric ids of equal timestamps.
		return cmp.Or(cmp.Compare(len(a.ID), len(b.ID)), cmp.Compare(a.ID, b.ID))
	})
	logger.Infof("found %d new posts of @%s", len(fresh), handle)

	delivered := 0
	for i, p := range fresh {
		if i > 0 && m.config.PostSendPause > 0 {
			select {
			case <-m.clock.After(m.config.PostSendPause):
			case <-ctx.Done():
				return delivered, ctx.Err()
			}
		}

		if err := m.sendPost(p); err != nil {
			logger.Errorf("failed to deliver post %v: %v", p, err)
			continue
		}

		if err := m.ledger.MarkProcessed(ctx, &models.ProcessedPost{
			PostID:   p.ID,
			Handle:   p.Handle,
			URL:      p.URL,
			Text:     p.Text,
			PostedAt: p.CreatedAt,
		}); err != nil {
			logger.Errorf("failed to mark post %v processed: %v", p, err)
		}

		delivered++
		m.stats.postsDelivered.Add(1)
		metrics.PostsDelivered.Inc()
	}

	return delivered, nil
}

func (m *Monitor) sendPost(p *twitter.Post) error {
	text := postText(p)
	if p.MediaURL != "" {
		photo := &telebot.Photo{File: telebot.FromURL(p.MediaURL), Caption: text}
		_, err := m.bot.Send(m.group, photo, telebot.ModeHTML)
		if err == nil {
			return nil
		}
		logrus.WithField("component", "monitor_poller").Warnf("failed to send post %s as photo, falling back to text: %v", p.ID, err)
	}

	if _, err := m.bot.Send(m.group, text, telebot.ModeHTML); err != nil {
		return fmt.Errorf("sending post %s: %w", p.ID, err)
	}
	return nil
}
