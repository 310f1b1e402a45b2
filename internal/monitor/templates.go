package monitor

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/teleluxbot/telelux/internal/activity"
	"github.com/teleluxbot/telelux/internal/config"
	"github.com/teleluxbot/telelux/internal/filter"
	"github.com/teleluxbot/telelux/internal/linkutil"
	"github.com/teleluxbot/telelux/internal/models"
	"github.com/teleluxbot/telelux/internal/twitter"
	"github.com/teleluxbot/telelux/internal/verification"
	"gopkg.in/telebot.v4"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	maxPostRunes   = 200
	maxQuotedRunes = 500

	// Keeps 20 lines under the message size limit.
	maxLogLineRunes = 180
)

func escape(s string) string {
	return html.EscapeString(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func handleOrNone(handle string) string {
	if handle == "" {
		return "无用户名"
	}
	return "@" + escape(handle)
}

func onOff(enabled bool) string {
	if enabled {
		return "开启"
	}
	return "关闭"
}

func mention(user *telebot.User) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, escape(displayName(user)))
}

func welcomeText(cfg *config.Config, name string) string {
	return fmt.Sprintf(`🎉 欢迎 <b>%s</b> 加入聊天群！

🔍 认准唯一官方账号：
• X账号：<a href="%s"><b>%s</b></a>
• Telegram账号：<a href="https://t.me/%s"><b>@%s</b></a>

💬 群内随意聊天，但请勿轻易相信任何陌生人，谨防诈骗 ⚠️`,
		escape(name),
		linkutil.ProfileURL(cfg.TwitterUsername),
		escape(cfg.TwitterUsername),
		escape(cfg.OperatorHandle),
		escape(cfg.OperatorHandle),
	)
}

func businessInfoText(cfg *config.Config) string {
	return fmt.Sprintf(`小助理下单机器人： 👉https://t.me/%s

※平台是自助入群，机器人下单即可。

如果不太会使用平台，或者遇到任何问题，可以私信 @%s。

注意事项：
1.因个人原因退群后不再重新拉群，还请注意一下。
2.支付过程中如有任何问题，也欢迎私信，我们会尽力帮助。

感谢大家的配合和支持！✨`,
		escape(cfg.OrderBotHandle),
		escape(cfg.OperatorHandle),
	)
}

func defaultReplyRules(cfg *config.Config) []filter.ReplyRule {
	orderBot := fmt.Sprintf(`👉 下单请使用机器人：<a href="https://t.me/%s">@%s</a>`, escape(cfg.OrderBotHandle), escape(cfg.OrderBotHandle))
	operator := fmt.Sprintf(`💬 如有问题请私信 @%s`, escape(cfg.OperatorHandle))
	return []filter.ReplyRule{
		{Trigger: "怎么下单", Reply: orderBot},
		{Trigger: "如何购买", Reply: orderBot},
		{Trigger: "怎么入群", Reply: orderBot},
		{Trigger: "价格", Reply: orderBot},
		{Trigger: "客服", Reply: operator},
		{Trigger: "联系管理", Reply: operator},
	}
}

func verificationText(user *telebot.User, ch verification.Challenge, timeout time.Duration) string {
	return fmt.Sprintf(`🔐 %s，请在 %s内回答以下问题完成验证：

<b>%s</b>

直接在群内发送答案数字即可，超时未验证将被移出群组。`,
		mention(user),
		waitText(timeout),
		escape(ch.Question),
	)
}

// waitText prints whole minutes when it can and rounds anything else up to
// seconds.
func waitText(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d 分钟", int(d/time.Minute))
	}
	return fmt.Sprintf("%d 秒", int((d+time.Second-1)/time.Second))
}

func verificationPassedText(user *telebot.User) string {
	return fmt.Sprintf("✅ 恭喜 %s 通过验证，欢迎加入！", mention(user))
}

func verificationFailedText(user *telebot.User, reason string) string {
	return fmt.Sprintf(`⛔ <b>用户验证失败</b>

👤 <b>用户信息:</b>
• 姓名: %s
• 用户名: %s
• ID: %d

📝 <b>原因:</b> %s

该用户已被移出群组。`,
		escape(displayName(user)),
		handleOrNone(user.Username),
		user.ID,
		escape(reason),
	)
}

func formatHistory(events []activity.Event) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		kind := "加入"
		if e.Kind == activity.EventLeave {
			kind = "离开"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s", kind, e.At.Format(timeLayout)))
	}
	return strings.Join(lines, "\n")
}

func repeatActivityText(snap activitySnapshot, action string, banned bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `🚨 <b>用户活动监控</b>

👤 <b>用户信息:</b>
• 姓名: %s
• 用户名: %s
• ID: %d

📊 <b>活动统计:</b>
• 总加入次数: %d
• 总离开次数: %d
• 当前动作: %s

📝 <b>活动历史:</b>
%s

⚠️ 该用户存在多次进群/退群行为，请注意关注。`,
		escape(snap.displayName),
		handleOrNone(snap.handle),
		snap.userID,
		snap.totalJoins,
		snap.totalLeaves,
		action,
		snap.history,
	)
	if banned {
		b.WriteString("\n🚫 该用户已在黑名单中。")
	}
	return b.String()
}

func blacklistedText(snap activitySnapshot) string {
	return fmt.Sprintf(`🚫 <b>用户已自动加入黑名单</b>

👤 <b>用户信息:</b>
• 姓名: %s
• 用户名: %s
• ID: %d

📊 <b>统计信息:</b>
• 总加入次数: %d
• 总离开次数: %d
• 加入黑名单原因: %s

📝 <b>活动历史:</b>
%s

⚠️ 该用户因多次离群已被自动加入黑名单。

💡 <b>管理命令:</b>
• 发送 'blacklist' - 查看黑名单
• 发送 'unban %d' - 从黑名单移除用户`,
		escape(snap.displayName),
		handleOrNone(snap.handle),
		snap.userID,
		snap.totalJoins,
		snap.totalLeaves,
		blacklistReason(snap.totalLeaves),
		snap.history,
		snap.userID,
	)
}

func adDeletedText(user *telebot.User, text, keyword string, at time.Time) string {
	return fmt.Sprintf(`🛡 <b>已删除疑似广告</b>

👤 <b>用户信息:</b>
• 姓名: %s
• 用户名: %s
• ID: %d

🔑 <b>命中关键词:</b> %s

📝 <b>消息内容:</b>
%s

🕒 <b>时间:</b> %s`,
		escape(displayName(user)),
		handleOrNone(user.Username),
		user.ID,
		escape(keyword),
		escape(truncate(text, maxQuotedRunes)),
		at.Format(timeLayout),
	)
}

func forwardText(msg *telebot.Message) string {
	user := msg.Sender
	return fmt.Sprintf(`📨 <b>收到私信</b>

👤 <b>用户信息:</b>
• 姓名: %s
• 用户名: %s
• 用户ID: %d
• Chat ID: %d

📝 <b>消息内容:</b>
%s

🕒 <b>发送时间:</b> %s

💬 <b>回复方式:</b> 可直接回复此消息或使用 Chat ID: %d`,
		escape(displayName(user)),
		handleOrNone(user.Username),
		user.ID,
		msg.Chat.ID,
		escape(msg.Text),
		msg.Time().UTC().Format(timeLayout+" UTC"),
		msg.Chat.ID,
	)
}

func helpText(cfg *config.Config) string {
	return `👋 你好！

💡 可用功能：
• 发送 '27' - 向群组发送业务介绍
• 发送 Twitter URL - 分享推文到群组
• 发送 'help' - 查看本帮助

🛠 管理命令：
• 'clear' - 清除群内所有欢迎消息
• 'blacklist' - 查看黑名单
• 'unban 用户ID' - 从黑名单移除用户
• 'stats' - 查看运行统计
• 'logs' - 查看最近日志
• 'check' - 立即检查新推文
• 'setinterval 秒数' - 设置推文检查间隔
• 'toggle 功能名' - 开关功能 (verification, ad-detection, auto-reply, auto-forward)

📝 支持的URL格式：
• https://twitter.com/用户名/status/推文ID
• https://x.com/用户名/status/推文ID

如需帮助请私信 @` + escape(cfg.OperatorHandle)
}

func startupText(cfg *config.Config) string {
	return fmt.Sprintf(`🚀 <b>机器人已启动</b>

📊 <b>功能说明:</b>
• 新成员欢迎 (%s后自动删除)
• 定时业务介绍: %s
• @%s 推文自动转发
• 用户进群退群行为监控
• 私信消息转发给管理员

🎉 <b>系统状态:</b> 运行中`,
		waitText(welcomeDelay(cfg)),
		broadcastScheduleText(cfg.BroadcastPeriodHours),
		escape(cfg.TwitterUsername),
	)
}

func broadcastScheduleText(periodHours int) string {
	if periodHours <= 0 {
		return "已关闭"
	}
	return fmt.Sprintf("每%d小时整点 (自动删除上一条)", periodHours)
}

const shutdownText = "🛑 机器人已停止"

func clearedText(cleared, failed int, at time.Time) string {
	return fmt.Sprintf(`🧹 <b>欢迎消息清除完成</b>

📊 <b>清除统计:</b>
• 成功删除: %d 条
• 删除失败: %d 条
• 总计处理: %d 条

⏰ <b>清除时间:</b> %s`,
		cleared,
		failed,
		cleared+failed,
		at.Format(timeLayout),
	)
}

func blacklistText(entries []*models.BlacklistEntry, total int64) string {
	if len(entries) == 0 {
		return "📋 <b>黑名单管理</b>\n\n✅ 黑名单为空，暂无被封禁用户。"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>黑名单管理</b>\n\n👥 <b>总计:</b> %d 个用户\n\n", total)
	for i, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = "未知用户"
		}
		fmt.Fprintf(&b, "<b>%d.</b> %s\n• ID: <code>%d</code>\n• 用户名: %s\n• 原因: %s\n• 离群次数: %d\n• 加入时间: %s\n\n",
			i+1,
			escape(name),
			e.UserID,
			handleOrNone(e.Handle),
			escape(e.Reason),
			e.LeaveCount,
			e.AddedAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Fprintf(&b, "💡 <b>管理提示:</b>\n• 发送 'unban 用户ID' 可移除用户\n• 例如: unban %d", entries[0].UserID)
	return b.String()
}

type statsView struct {
	uptime          time.Duration
	trackedUsers    int
	pending         int
	welcomeMessages int
	scheduled       int
	bans            int64
	processedPosts  int64
	joins           int64
	leaves          int64
	adsDeleted      int64
	verified        int64
	kicked          int64
	autoReplies     int64
	forwarded       int64
	postsDelivered  int64
	features        []featureState
	pollInterval    time.Duration
}

func statsText(s statsView) string {
	var b strings.Builder
	fmt.Fprintf(&b, `📊 <b>运行统计</b>

⏱ <b>运行时间:</b> %s

👥 <b>状态:</b>
• 跟踪用户: %d
• 待验证用户: %d
• 欢迎消息: %d
• 计划任务: %d
• 黑名单用户: %d
• 已处理推文: %d

📈 <b>计数:</b>
• 加入: %d
• 离开: %d
• 删除广告: %d
• 通过验证: %d
• 移出群组: %d
• 自动回复: %d
• 转发私信: %d
• 发送推文: %d

⚙️ <b>功能:</b>
`,
		s.uptime.Truncate(time.Second),
		s.trackedUsers,
		s.pending,
		s.welcomeMessages,
		s.scheduled,
		s.bans,
		s.processedPosts,
		s.joins,
		s.leaves,
		s.adsDeleted,
		s.verified,
		s.kicked,
		s.autoReplies,
		s.forwarded,
		s.postsDelivered,
	)
	for _, f := range s.features {
		fmt.Fprintf(&b, "• %s: %s\n", f.name, onOff(f.enabled))
	}
	fmt.Fprintf(&b, "\n🔄 <b>推文检查间隔:</b> %d 秒", int(s.pollInterval/time.Second))
	return b.String()
}

func logsText(lines []string) string {
	if len(lines) == 0 {
		return "📜 暂无日志"
	}
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed = append(trimmed, truncate(l, maxLogLineRunes))
	}
	return "📜 <b>最近日志</b>\n\n<pre>" + escape(strings.Join(trimmed, "\n")) + "</pre>"
}

func postText(p *twitter.Post) string {
	created := "未知"
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.Format(timeLayout)
	}
	return fmt.Sprintf(`🐦 <b>新推文提醒</b>

👤 <b>用户:</b> @%s
📝 <b>内容:</b> %s
🕒 <b>时间:</b> %s

🔗 <a href="%s">查看原推文</a>`,
		escape(p.Handle),
		escape(truncate(p.Text, maxPostRunes)),
		created,
		escape(p.URL),
	)
}
