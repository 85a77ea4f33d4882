// Package app инициализирует все компоненты приложения.
// app.go собирает хранилище, сервисы ядра наград, HTTP API,
// бот ревьюеров и планировщик.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/api"
	"bitbee.app/rewards-core/internal/bot"
	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/db/postgres"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
	"bitbee.app/rewards-core/internal/features/referral"
	"bitbee.app/rewards-core/internal/features/streak"
	"bitbee.app/rewards-core/internal/features/tasks"
	"bitbee.app/rewards-core/internal/features/wallet"
	"bitbee.app/rewards-core/internal/features/withdrawal"
	"bitbee.app/rewards-core/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *api.Server
	Scheduler *jobs.Scheduler
	// Bot и Updates равны nil, если бот ревьюеров выключен
	Bot     *bot.Bot
	Updates <-chan telego.Update
	// DB равен nil для APP_STORAGE=memory
	DB *pgxpool.Pool
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := common.SetLocation(cfg.AppTimezone); err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", cfg.AppTimezone, err)
	}

	// === 1. Хранилище ===
	a := &App{}
	var store accounts.Store
	switch cfg.AppStorage {
	case "memory":
		log.Warn("APP_STORAGE=memory: данные не переживут перезапуск")
		store = accounts.NewMemoryStore()
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		store = accounts.NewRepository(pool)
	}

	// === 2. Сервисы ===
	taskService := tasks.NewService(store, tasks.DefaultCatalog(), cfg)
	walletService := wallet.NewService(store, wallet.LogSender{}, cfg)
	services := api.Services{
		Ledger:     ledger.NewService(store),
		Streak:     streak.NewService(store, cfg),
		Tasks:      taskService,
		Referral:   referral.NewService(store, cfg),
		Withdrawal: withdrawal.NewService(store, withdrawal.LogExecutor{}, cfg),
		Wallet:     walletService,
	}

	// === 3. HTTP API ===
	a.Server = api.NewServer(cfg, services)

	// === 4. Бот ревьюеров ===
	var notifier jobs.Notifier
	if cfg.FeatureReviewBotEnabled {
		b, updates, err := newReviewBot(ctx, cfg, taskService)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bot, a.Updates = b, updates
		notifier = b
	}

	// === 5. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(cfg, taskService, walletService, notifier)
	return a, nil
}

// newReviewBot подключается к Telegram и открывает long polling.
// Polling останавливается вместе с ctx.
func newReviewBot(ctx context.Context, cfg *config.Config, reviews bot.Reviews) (*bot.Bot, <-chan telego.Update, error) {
	tg, err := telego.NewBot(cfg.TelegramBotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	updates, err := tg.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка запуска long polling: %w", err)
	}
	return bot.New(tg, reviews, cfg), updates, nil
}

// Close освобождает пул соединений.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
