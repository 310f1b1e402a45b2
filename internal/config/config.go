package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	MinPollInterval = time.Minute
	MaxPollInterval = 24 * time.Hour
)

type Config struct {
	TelegramToken string `mapstructure:"telegram_token"`
	ChatID        int64  `mapstructure:"chat_id"`
	AdminChatID   int64  `mapstructure:"admin_chat_id"`

	TwitterBearerToken string `mapstructure:"twitter_bearer_token"`
	TwitterUsername    string `mapstructure:"twitter_username"`
	TwitterAPIURL      string `mapstructure:"twitter_api_url"`

	OperatorHandle string `mapstructure:"operator_handle"`
	OrderBotHandle string `mapstructure:"order_bot_handle"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseDSN    string `mapstructure:"database_dsn"`
	RedisAddr      string `mapstructure:"redis_addr"`
	HTTPListen     string `mapstructure:"http_listen"`

	BotHandleTimeout    time.Duration `mapstructure:"bot_handle_timeout"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PostSendPause       time.Duration `mapstructure:"post_send_pause"`
	WelcomeDeleteDelay  time.Duration `mapstructure:"welcome_delete_delay"`
	VerificationTimeout time.Duration `mapstructure:"verification_timeout"`

	BroadcastPeriodHours int    `mapstructure:"broadcast_period_hours"`
	BroadcastText        string `mapstructure:"broadcast_text"`

	ActivityMaxSize          int     `mapstructure:"activity_max_size"`
	ActivityCleanupThreshold float64 `mapstructure:"activity_cleanup_threshold"`

	FeatureVerification bool `mapstructure:"feature_verification"`
	FeatureAdDetection  bool `mapstructure:"feature_ad_detection"`
	FeatureAutoReply    bool `mapstructure:"feature_auto_reply"`
	FeatureAutoForward  bool `mapstructure:"feature_auto_forward"`

	// Post a notice to the group when the bot starts and stops.
	AnnounceLifecycle bool `mapstructure:"announce_lifecycle"`

	AdKeywords  []string `mapstructure:"ad_keywords"`
	AdWhitelist []string `mapstructure:"ad_whitelist"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.TelegramToken == "" {
		problems = append(problems, "telegram_token is required")
	}
	if c.ChatID == 0 {
		problems = append(problems, "chat_id is required")
	}
	if c.TwitterBearerToken == "" {
		problems = append(problems, "twitter_bearer_token is required")
	}
	if c.TwitterUsername == "" {
		problems = append(problems, "twitter_username is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("unsupported database_driver %q", c.DatabaseDriver))
	}
	if c.PollInterval < MinPollInterval || c.PollInterval > MaxPollInterval {
		problems = append(problems, fmt.Sprintf("poll_interval must be within [%s, %s]", MinPollInterval, MaxPollInterval))
	}
	if c.TickInterval <= 0 {
		problems = append(problems, "tick_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func SetupCommon() {
	viper.SetDefault("twitter_api_url", "https://api.twitter.com")
	viper.SetDefault("operator_handle", "mteacherlu")
	viper.SetDefault("order_bot_handle", "Lulaoshi_bot")
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("database_dsn", "telelux.db")
	viper.SetDefault("redis_addr", "")
	viper.SetDefault("http_listen", ":8080")
	viper.SetDefault("broadcast_text", "")
	viper.SetDefault("ad_keywords", []string{})
	viper.SetDefault("ad_whitelist", []string{})
	viper.SetDefault("poll_interval", "300s")
	viper.SetDefault("tick_interval", "30s")
	viper.SetDefault("feature_verification", true)
	viper.SetDefault("feature_ad_detection", true)
	viper.SetDefault("feature_auto_reply", true)
	viper.SetDefault("feature_auto_forward", true)
	viper.SetDefault("announce_lifecycle", true)
	viper.SetEnvPrefix("TELELUX")

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("chat_id")
	viper.MustBindEnv("admin_chat_id")
	viper.MustBindEnv("twitter_bearer_token")
	viper.MustBindEnv("twitter_username")
	viper.AutomaticEnv()
}
