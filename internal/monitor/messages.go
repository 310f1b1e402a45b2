package monitor

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/linkutil"
	"github.com/teleluxbot/telelux/internal/metrics"
	"github.com/teleluxbot/telelux/internal/twitter"
	"github.com/teleluxbot/telelux/internal/verification"
	"gopkg.in/telebot.v4"
)

func (m *Monitor) HandleText(uc *UpdateContext) {
	msg := uc.Message()
	if msg.Chat == nil || msg.Sender == nil {
		uc.L().Debugf("ignoring message without chat or sender")
		return
	}

	switch {
	case msg.Private():
		m.handlePrivate(uc)
	case msg.Chat.ID == m.config.ChatID:
		m.handleGroup(uc)
	default:
		uc.L().Debugf("ignoring message from foreign chat")
	}
}

func (m *Monitor) handlePrivate(uc *UpdateContext) {
	msg := uc.Message()

	if m.features.autoForward.Load() && !m.isOperator(msg.Sender) && msg.Chat.ID != m.config.AdminChatID {
		m.forwardToOperator(uc)
	}

	text := strings.TrimSpace(msg.Text)
	if cmd, args, ok := m.matchCommand(text); ok {
		m.runCommand(uc, cmd, args)
		return
	}

	if linkutil.IsPostURL(text) {
		m.sharePost(uc, text)
		return
	}

	m.reply(uc, helpText(m.config))
}

func (m *Monitor) forwardToOperator(uc *UpdateContext) {
	if m.admin == nil {
		uc.L().Warnf("admin_chat_id is not configured, not forwarding private message")
		return
	}
	if _, err := m.bot.Send(m.admin, forwardText(uc.Message()), telebot.ModeHTML, telebot.NoPreview); err != nil {
		uc.L().Errorf("failed to forward private message: %v", err)
		return
	}
	m.stats.forwarded.Add(1)
}

func (m *Monitor) handleGroup(uc *UpdateContext) {
	msg := uc.Message()
	sender := msg.Sender

	if m.features.verification.Load() && m.verifier.Has(sender.ID) {
		m.handleAnswer(uc)
		return
	}

	if m.features.adDetection.Load() && !m.isOperator(sender) {
		if isAd, keyword := m.adFilter.Classify(msg.Text); isAd {
			uc.L().Infof("deleting ad from user %d, keyword %q", sender.ID, keyword)
			if err := m.bot.Delete(msg); err != nil && !isMessageGone(err) {
				uc.L().Errorf("failed to delete ad: %v", err)
			}
			m.stats.adsDeleted.Add(1)
			metrics.AdsDeleted.WithLabelValues(keyword).Inc()
			m.notifyAdmin(uc.L(), adDeletedText(sender, msg.Text, keyword, m.clock.Now()))
			return
		}
	}

	if m.features.autoReply.Load() {
		if reply, ok := m.replies.Lookup(msg.Text); ok {
			if _, err := m.bot.Send(
				m.group,
				reply,
				&telebot.SendOptions{ReplyTo: msg},
				telebot.ModeHTML,
				telebot.NoPreview,
			); err != nil {
				uc.L().Errorf("failed to send auto reply: %v", err)
				return
			}
			m.stats.autoReplies.Add(1)
			metrics.AutoReplies.Inc()
		}
	}
}

func (m *Monitor) handleAnswer(uc *UpdateContext) {
	msg := uc.Message()
	user := msg.Sender

	res := m.verifier.Submit(user.ID, msg.Text)
	metrics.Verifications.WithLabelValues(res.String()).Inc()
	uc.L().Infof("verification answer of user %d: %v", user.ID, res)

	if err := m.bot.Delete(msg); err != nil && !isMessageGone(err) {
		uc.L().Warnf("failed to delete verification answer: %v", err)
	}

	switch res {
	case verification.Passed:
		m.stats.verified.Add(1)
		m.liftRestriction(uc.L(), user)
		congrats, err := m.bot.Send(m.group, verificationPassedText(user), telebot.ModeHTML)
		if err != nil {
			uc.L().Errorf("failed to send congratulation: %v", err)
			return
		}
		m.scheduleDelete(congratsDeleteDelay, "delete congratulation", congrats)
	case verification.Expired:
		m.kick(uc.L(), user)
		m.notifyAdmin(uc.L(), verificationFailedText(user, "验证超时"))
	}
}

func (m *Monitor) sharePost(uc *UpdateContext, text string) {
	postID, ok := linkutil.ExtractPostID(text)
	if !ok {
		m.reply(uc, "❌ 无法识别推文链接")
		return
	}

	chat := uc.Chat()
	logger := uc.L()
	m.pool.Go(func() {
		ctx, cancel := context.WithTimeout(m.ctx, defaultPollTimeout)
		defer cancel()

		post, err := m.posts.PostByID(ctx, postID)
		if err != nil {
			logger.Warnf("failed to fetch post %s: %v", postID, err)
			m.send(logger, chat, shareErrorText(err))
			return
		}

		if err := m.sendPost(post); err != nil {
			logger.Errorf("failed to share post %s: %v", postID, err)
			m.send(logger, chat, "❌ 分享推文到群组失败")
			return
		}
		m.send(logger, chat, "✅ 推文已分享到群组")
	})
}

func (m *Monitor) send(logger *logrus.Entry, to *telebot.Chat, text string) {
	if _, err := m.bot.Send(to, text, telebot.ModeHTML, telebot.NoPreview); err != nil {
		logger.Errorf("failed to send message to %d: %v", to.ID, err)
	}
}

func shareErrorText(err error) string {
	switch {
	case errors.Is(err, twitter.ErrRateLimited):
		return "⏳ 推文接口请求过于频繁，请稍后再试"
	case errors.Is(err, twitter.ErrUnauthorized):
		return "❌ 推文接口认证失败，请联系管理员"
	case errors.Is(err, twitter.ErrNotFound):
		return "❌ 推文不存在或已被删除"
	default:
		return "❌ 获取推文失败，请稍后再试"
	}
}
