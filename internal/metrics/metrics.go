package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MemberEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "telelux_member_events_total",
	Help: "Group membership transitions by kind",
}, []string{"kind"})

var AdsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "telelux_ads_deleted_total",
	Help: "Group messages deleted as ads, by matched keyword",
}, []string{"keyword"})

var Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "telelux_verifications_total",
	Help: "Verification challenge outcomes",
}, []string{"result"})

var AutoReplies = promauto.NewCounter(prometheus.CounterOpts{
	Name: "telelux_auto_replies_total",
	Help: "Auto replies sent in the group",
})

var Blacklisted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "telelux_blacklisted_total",
	Help: "Users added to the blacklist",
})

var PostsDelivered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "telelux_posts_delivered_total",
	Help: "Polled posts delivered to the group",
})

var PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "telelux_poll_duration_seconds",
	Help:    "Time to poll the post source",
	Buckets: prometheus.ExponentialBucketsRange(0.01, 60, 12),
}, []string{"status"})

var Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "telelux_broadcasts_total",
	Help: "Business info messages published to the group",
})

var Commands = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "telelux_commands_total",
	Help: "Private commands handled, by trigger",
}, []string{"command"})
