package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/teleluxbot/telelux/internal/api"
	"github.com/teleluxbot/telelux/internal/broadcast"
	"github.com/teleluxbot/telelux/internal/config"
	"github.com/teleluxbot/telelux/internal/logging"
	"github.com/teleluxbot/telelux/internal/monitor"
	"github.com/teleluxbot/telelux/internal/storage"
	"github.com/teleluxbot/telelux/internal/twitter"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	hook := logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Bad configuration: %v", err)
	}

	db, err := gorm.Open(dialector(cfg), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	globalState, err := store.GetOrCreateGlobalState(initCtx)
	if err != nil {
		logrus.Fatalf("Failed to get or create global state: %v", err)
	}

	var ledger monitor.Ledger = store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(initCtx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to redis: %v", err)
		}
		ledger = storage.NewCached(store, rdb)
		logrus.Infof("processed post lookups cached in redis at %s", cfg.RedisAddr)
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token:       cfg.TelegramToken,
		Synchronous: true,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			LastUpdateID:   globalState.LastUpdateID,
			AllowedUpdates: []string{"message", "chat_member"},
		},
		OnError: func(err error, c telebot.Context) {
			logrus.Errorf("bot error: %v", err)
		},
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	posts := twitter.New(cfg.TwitterAPIURL, cfg.TwitterBearerToken)

	mon := monitor.New(
		cfg,
		ledger,
		bot,
		posts,
		broadcast.State{
			LastSentAt:    globalState.LastBroadcastAt,
			LastMessageID: globalState.LastBroadcastMessageID,
		},
		monitor.WithRecentLogs(hook),
	)

	for _, updateType := range []string{
		telebot.OnText,
		telebot.OnChatMember,
	} {
		bot.Handle(updateType, mon.HandleAnyUpdate)
	}

	server := api.NewServer(api.NewService(store, clockwork.NewRealClock()))

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.RunTicker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(cfg.HTTPListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("status server failed: %v", err)
		}
	}()

	logrus.Infof("bot started for chat %d, watching @%s", cfg.ChatID, cfg.TwitterUsername)
	mon.AnnounceStartup()
	<-ctx.Done()

	mon.AnnounceShutdown()
	bot.Stop()
	mon.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shut down status server: %v", err)
	}

	logrus.Info("waiting for services to finish")
	wg.Wait()
}

func dialector(cfg *config.Config) gorm.Dialector {
	if cfg.DatabaseDriver == "postgres" {
		return postgres.Open(cfg.DatabaseDSN)
	}
	return sqlite.Open(cfg.DatabaseDSN)
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "10s")
	viper.SetDefault("post_send_pause", "2s")
	viper.SetDefault("welcome_delete_delay", "60s")
	viper.SetDefault("verification_timeout", "5m")
	viper.SetDefault("broadcast_period_hours", 3)
	viper.SetDefault("activity_max_size", 1000)
	viper.SetDefault("activity_cleanup_threshold", 0.8)
	config.SetupCommon()
}
