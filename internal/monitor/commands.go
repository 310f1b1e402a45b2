package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teleluxbot/telelux/internal/config"
	"github.com/teleluxbot/telelux/internal/metrics"
)

const recentLogLines = 20

type command struct {
	trigger      string
	operatorOnly bool
	run          func(uc *UpdateContext, args string)
}

func (c *command) String() string {
	return c.trigger
}

// Matches accepts the trigger alone or followed by a space and arguments,
// ignoring case.
func (c *command) Matches(text string) (string, bool) {
	n := len(c.trigger)
	if len(text) < n || !strings.EqualFold(text[:n], c.trigger) {
		return "", false
	}
	rest := text[n:]
	switch {
	case rest == "":
		return "", true
	case rest[0] == ' ':
		return strings.TrimSpace(rest), true
	default:
		return "", false
	}
}

func (m *Monitor) buildCommands() []*command {
	return []*command{
		{trigger: "27", run: m.cmdPublish},
		{trigger: "clear", operatorOnly: true, run: m.cmdClear},
		{trigger: "blacklist", operatorOnly: true, run: m.cmdBlacklist},
		{trigger: "unban", operatorOnly: true, run: m.cmdUnban},
		{trigger: "stats", operatorOnly: true, run: m.cmdStats},
		{trigger: "logs", operatorOnly: true, run: m.cmdLogs},
		{trigger: "help", run: m.cmdHelp},
		{trigger: "check", operatorOnly: true, run: m.cmdCheck},
		{trigger: "setinterval", operatorOnly: true, run: m.cmdSetInterval},
		{trigger: "toggle", operatorOnly: true, run: m.cmdToggle},
	}
}

func (m *Monitor) matchCommand(text string) (*command, string, bool) {
	for _, cmd := range m.commands {
		if args, ok := cmd.Matches(text); ok {
			return cmd, args, true
		}
	}
	return nil, "", false
}

func (m *Monitor) runCommand(uc *UpdateContext, cmd *command, args string) {
	if cmd.operatorOnly && !m.isOperator(uc.Sender()) {
		uc.L().Warnf("unauthorized %s command", cmd)
		m.reply(uc, "❌ 此命令仅管理员可用")
		return
	}

	uc.L().Infof("running %s command", cmd)
	metrics.Commands.WithLabelValues(cmd.trigger).Inc()
	cmd.run(uc, args)
}

func (m *Monitor) cmdPublish(uc *UpdateContext, _ string) {
	if err := m.broadcaster.Publish(); err != nil {
		uc.L().Errorf("failed to publish business info: %v", err)
		m.reply(uc, "❌ 发送业务介绍失败，请稍后再试")
		return
	}
	metrics.Broadcasts.Inc()

	state := m.broadcaster.State()
	if err := m.ledger.SaveBroadcastState(uc, state.LastSentAt, state.LastMessageID); err != nil {
		uc.L().Errorf("failed to save broadcast state: %v", err)
	}
	m.reply(uc, "✅ 业务介绍已发送到群组")
}

func (m *Monitor) cmdClear(uc *UpdateContext, _ string) {
	cleared, failed := m.clearWelcomes()
	uc.L().Infof("cleared welcome messages: %d ok, %d failed", cleared, failed)
	m.reply(uc, clearedText(cleared, failed, m.clock.Now()))
}

func (m *Monitor) cmdBlacklist(uc *UpdateContext, _ string) {
	entries, err := m.ledger.ListBans(uc)
	if err != nil {
		uc.L().Errorf("failed to list blacklist: %v", err)
		m.reply(uc, "❌ 获取黑名单信息失败")
		return
	}
	total, err := m.ledger.CountBans(uc)
	if err != nil {
		uc.L().Errorf("failed to count blacklist: %v", err)
		total = int64(len(entries))
	}
	m.reply(uc, blacklistText(entries, total))
}

func (m *Monitor) cmdUnban(uc *UpdateContext, args string) {
	userID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		m.reply(uc, "❌ 用户ID格式错误，请使用: unban 123456789")
		return
	}

	removed, err := m.ledger.RemoveBan(uc, userID)
	switch {
	case err != nil:
		uc.L().Errorf("failed to unban %d: %v", userID, err)
		m.reply(uc, "❌ 移除黑名单用户失败")
	case !removed:
		m.reply(uc, fmt.Sprintf("❌ 用户 ID %d 不在黑名单中", userID))
	default:
		uc.L().Infof("user %d removed from blacklist", userID)
		m.reply(uc, fmt.Sprintf("✅ 已将用户 ID %d 从黑名单中移除", userID))
		if uc.Chat().ID != m.config.AdminChatID {
			m.notifyAdmin(uc.L(), fmt.Sprintf("🔓 <b>用户解封通知</b>\n\n用户 ID %d 已从黑名单中移除。", userID))
		}
	}
}

func (m *Monitor) cmdStats(uc *UpdateContext, _ string) {
	bans, err := m.ledger.CountBans(uc)
	if err != nil {
		uc.L().Errorf("failed to count blacklist: %v", err)
	}
	posts, err := m.ledger.CountProcessed(uc)
	if err != nil {
		uc.L().Errorf("failed to count processed posts: %v", err)
	}

	m.reply(uc, statsText(statsView{
		uptime:          m.clock.Since(m.startedAt),
		trackedUsers:    m.activity.Len(),
		pending:         m.verifier.Len(),
		welcomeMessages: m.welcomeCount(),
		scheduled:       m.scheduler.Pending(),
		bans:            bans,
		processedPosts:  posts,
		joins:           m.stats.joins.Load(),
		leaves:          m.stats.leaves.Load(),
		adsDeleted:      m.stats.adsDeleted.Load(),
		verified:        m.stats.verified.Load(),
		kicked:          m.stats.kicked.Load(),
		autoReplies:     m.stats.autoReplies.Load(),
		forwarded:       m.stats.forwarded.Load(),
		postsDelivered:  m.stats.postsDelivered.Load(),
		features:        m.featureStates(),
		pollInterval:    m.PollInterval(),
	}))
}

func (m *Monitor) cmdLogs(uc *UpdateContext, _ string) {
	if m.logs == nil {
		m.reply(uc, "❌ 日志不可用")
		return
	}
	m.reply(uc, logsText(m.logs.Recent(recentLogLines)))
}

func (m *Monitor) cmdHelp(uc *UpdateContext, _ string) {
	m.reply(uc, helpText(m.config))
}

func (m *Monitor) cmdCheck(uc *UpdateContext, _ string) {
	m.reply(uc, "🔍 正在检查新推文...")

	chat := uc.Chat()
	logger := uc.L()
	m.pool.Go(func() {
		ctx, cancel := context.WithTimeout(m.ctx, defaultPollTimeout)
		defer cancel()

		delivered, err := m.PollPosts(ctx, true)
		if err != nil {
			logger.Errorf("forced poll failed: %v", err)
			m.send(logger, chat, fmt.Sprintf("❌ 检查推文失败: %s", escape(err.Error())))
			return
		}
		m.send(logger, chat, fmt.Sprintf("✅ 检查完成，发送了 %d 条新推文", delivered))
	})
}

func (m *Monitor) cmdSetInterval(uc *UpdateContext, args string) {
	seconds, err := strconv.Atoi(args)
	if err != nil {
		m.reply(uc, "❌ 格式错误，请使用: setinterval 秒数")
		return
	}

	interval := time.Duration(seconds) * time.Second
	if interval < config.MinPollInterval || interval > config.MaxPollInterval {
		m.reply(uc, fmt.Sprintf(
			"❌ 间隔必须在 %d 到 %d 秒之间",
			int(config.MinPollInterval/time.Second),
			int(config.MaxPollInterval/time.Second),
		))
		return
	}

	m.pollInterval.Store(int64(interval))
	uc.L().Infof("poll interval set to %s", interval)
	m.reply(uc, fmt.Sprintf("✅ 推文检查间隔已设置为 %d 秒", seconds))
}

var featureNames = []string{"verification", "ad-detection", "auto-reply", "auto-forward"}

func (m *Monitor) feature(name string) *atomic.Bool {
	switch name {
	case "verification":
		return &m.features.verification
	case "ad-detection":
		return &m.features.adDetection
	case "auto-reply":
		return &m.features.autoReply
	case "auto-forward":
		return &m.features.autoForward
	default:
		return nil
	}
}

type featureState struct {
	name    string
	enabled bool
}

func (m *Monitor) featureStates() []featureState {
	res := make([]featureState, 0, len(featureNames))
	for _, name := range featureNames {
		res = append(res, featureState{name: name, enabled: m.feature(name).Load()})
	}
	return res
}

func (m *Monitor) cmdToggle(uc *UpdateContext, args string) {
	name := strings.ToLower(args)
	flag := m.feature(name)
	if flag == nil {
		m.reply(uc, fmt.Sprintf("❌ 未知功能，可选: %s", strings.Join(featureNames, ", ")))
		return
	}

	// Concurrent toggles must not lose a flip.
	for {
		old := flag.Load()
		if flag.CompareAndSwap(old, !old) {
			uc.L().Infof("feature %s set to %v", name, !old)
			m.reply(uc, fmt.Sprintf("✅ 功能 %s 已%s", name, onOff(!old)))
			return
		}
	}
}
