package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/metrics"
	"github.com/teleluxbot/telelux/internal/models"
	"github.com/teleluxbot/telelux/internal/verification"
	"gopkg.in/telebot.v4"
)

// activitySnapshot is a copy of a record taken under the member lock.
type activitySnapshot struct {
	userID      int64
	displayName string
	handle      string
	totalJoins  int
	totalLeaves int
	history     string
}

func isInside(cm *telebot.ChatMember) bool {
	if cm == nil {
		return false
	}
	switch cm.Role {
	case telebot.Creator, telebot.Administrator, telebot.Member:
		return true
	case telebot.Restricted:
		return cm.Member
	default:
		return false
	}
}

func roleOf(cm *telebot.ChatMember) telebot.MemberStatus {
	if cm == nil {
		return telebot.Left
	}
	return cm.Role
}

func (m *Monitor) HandleMemberUpdate(uc *UpdateContext) {
	upd := uc.ChatMember()
	if upd.Chat == nil || upd.Chat.ID != m.config.ChatID {
		uc.L().Debugf("ignoring member update from foreign chat")
		return
	}
	if upd.NewChatMember == nil || upd.NewChatMember.User == nil {
		uc.L().Debugf("ignoring member update without user")
		return
	}

	user := upd.NewChatMember.User
	if user.IsBot {
		uc.L().Infof("bot %s (%d) changed membership, ignoring", user.Username, user.ID)
		return
	}

	wasInside, isNowInside := isInside(upd.OldChatMember), isInside(upd.NewChatMember)
	switch {
	case !wasInside && isNowInside:
		m.onJoin(uc, user)
	case wasInside && !isNowInside:
		m.onLeave(uc, user)
	default:
		uc.L().Debugf(
			"member %d status change %s -> %s does not affect membership",
			user.ID,
			roleOf(upd.OldChatMember),
			roleOf(upd.NewChatMember),
		)
	}
}

func (m *Monitor) recordTransition(user *telebot.User, join bool) activitySnapshot {
	m.memberMu.Lock()
	defer m.memberMu.Unlock()

	rec := m.activity.GetOrCreate(user.ID, displayName(user), user.Username)
	if join {
		rec.RecordJoin(m.clock.Now())
	} else {
		rec.RecordLeave(m.clock.Now())
	}

	return activitySnapshot{
		userID:      rec.UserID,
		displayName: rec.DisplayName,
		handle:      rec.Handle,
		totalJoins:  rec.TotalJoins,
		totalLeaves: rec.TotalLeaves,
		history:     formatHistory(rec.History()),
	}
}

func (m *Monitor) onJoin(uc *UpdateContext, user *telebot.User) {
	snap := m.recordTransition(user, true)
	m.stats.joins.Add(1)
	metrics.MemberEvents.WithLabelValues("join").Inc()

	uc.L().Infof("user %s (%d) joined, total joins %d", snap.displayName, user.ID, snap.totalJoins)

	msg, err := m.bot.Send(m.group, welcomeText(m.config, snap.displayName), telebot.ModeHTML, telebot.NoPreview)
	if err != nil {
		uc.L().Errorf("failed to send welcome message: %v", err)
	} else {
		ref := &models.WelcomeMessage{
			ChatID:      m.group.ID,
			MessageID:   msg.ID,
			UserID:      user.ID,
			DisplayName: snap.displayName,
			SentAt:      m.clock.Now(),
		}
		m.addWelcome(ref)
		m.scheduler.Schedule(m.welcomeDeleteDelay(), "delete welcome message", func(ctx context.Context) {
			m.deleteWelcome(ref)
		})
	}

	if m.features.verification.Load() {
		m.startVerification(uc, user)
	}

	if snap.totalJoins > 1 {
		banned, err := m.ledger.IsBanned(uc, user.ID)
		if err != nil {
			uc.L().Errorf("failed to check blacklist: %v", err)
		}
		m.notifyAdmin(uc.L(), repeatActivityText(snap, "加入", banned))
	}
}

func (m *Monitor) onLeave(uc *UpdateContext, user *telebot.User) {
	snap := m.recordTransition(user, false)
	m.stats.leaves.Add(1)
	metrics.MemberEvents.WithLabelValues("leave").Inc()

	uc.L().Infof("user %s (%d) left, total leaves %d", snap.displayName, user.ID, snap.totalLeaves)

	if m.verifier.Cancel(user.ID) {
		uc.L().Infof("dropped pending verification of user %d", user.ID)
	}

	banned := false
	if snap.totalLeaves >= 2 {
		entry := &models.BlacklistEntry{
			UserID:      user.ID,
			DisplayName: snap.displayName,
			Handle:      snap.handle,
			Reason:      blacklistReason(snap.totalLeaves),
			LeaveCount:  snap.totalLeaves,
			AddedBy:     models.BlacklistAddedBySystem,
			AddedAt:     m.clock.Now(),
		}
		if err := m.ledger.AddBan(uc, entry); err != nil {
			uc.L().Errorf("failed to blacklist user %d: %v", user.ID, err)
		} else {
			banned = true
			metrics.Blacklisted.Inc()
			uc.L().Infof("user %d blacklisted after %d leaves", user.ID, snap.totalLeaves)
			m.notifyAdmin(uc.L(), blacklistedText(snap))
		}
	}

	if snap.totalLeaves > 1 {
		m.notifyAdmin(uc.L(), repeatActivityText(snap, "离开", banned))
	}
}

func (m *Monitor) startVerification(uc *UpdateContext, user *telebot.User) {
	if err := m.bot.Restrict(m.group, &telebot.ChatMember{
		User:            user,
		Rights:          telebot.Rights{CanSendMessages: true},
		RestrictedUntil: telebot.Forever(),
	}); err != nil {
		uc.L().Errorf("failed to restrict user %d, skipping verification: %v", user.ID, err)
		return
	}

	ch := m.verifier.Issue(user.ID)
	uc.L().Infof("issued verification to user %d, expires at %s", user.ID, ch.ExpiresAt.Format(time.DateTime))

	msg, err := m.bot.Send(m.group, verificationText(user, ch, m.verifier.Timeout()), telebot.ModeHTML)
	if err != nil {
		uc.L().Errorf("failed to send verification message: %v", err)
	} else {
		m.scheduleDelete(m.verifier.Timeout(), "delete verification message", msg)
	}

	m.scheduleVerificationTimeout(user, ch.ExpiresAt.Sub(m.clock.Now()))
}

func (m *Monitor) scheduleVerificationTimeout(user *telebot.User, delay time.Duration) {
	m.scheduler.Schedule(delay, "verification timeout", func(ctx context.Context) {
		m.onVerificationTimeout(ctx, user)
	})
}

func (m *Monitor) onVerificationTimeout(ctx context.Context, user *telebot.User) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "monitor",
		"user_id":   user.ID,
	})

	if !m.features.verification.Load() {
		if m.verifier.Cancel(user.ID) {
			logger.Infof("verification disabled, lifting restriction")
			m.liftRestriction(logger, user)
		}
		return
	}

	switch m.verifier.CheckTimeout(user.ID) {
	case verification.Expired:
		logger.Infof("verification timed out, removing user")
		metrics.Verifications.WithLabelValues(verification.Expired.String()).Inc()
		m.kick(logger, user)
		m.notifyAdmin(logger, verificationFailedText(user, "验证超时"))
	case verification.Pending:
		ch, ok := m.verifier.Get(user.ID)
		if ok {
			m.scheduleVerificationTimeout(user, ch.ExpiresAt.Sub(m.clock.Now()))
		}
	default:
		logger.Debugf("no pending verification")
	}
}

func (m *Monitor) liftRestriction(logger *logrus.Entry, user *telebot.User) {
	if err := m.bot.Restrict(m.group, &telebot.ChatMember{
		User:            user,
		Rights:          telebot.NoRestrictions(),
		RestrictedUntil: telebot.Forever(),
	}); err != nil {
		logger.Errorf("failed to lift restriction of user %d: %v", user.ID, err)
	}
}

// kick removes the user without banning: unbanning a current member
// removes them from the group.
func (m *Monitor) kick(logger *logrus.Entry, user *telebot.User) {
	m.stats.kicked.Add(1)
	if err := m.bot.Unban(m.group, user); err != nil {
		logger.Errorf("failed to kick user %d: %v", user.ID, err)
	}
}

func blacklistReason(leaves int) string {
	return fmt.Sprintf("多次离群 (%d次)", leaves)
}
