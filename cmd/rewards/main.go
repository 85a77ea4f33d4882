// Package main: точка входа сервиса наград.
// Загружает конфигурацию, инициализирует приложение и запускает HTTP API,
// бота ревьюеров и планировщик. Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bitbee.app/rewards-core/internal/app"
	"bitbee.app/rewards-core/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Настраиваем логирование
	setupLogging(os.Getenv("APP_LOG_FORMAT"))

	log.Info("=== Сервис наград запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}
	defer application.Scheduler.Stop()

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(application.Server.Listen)
	if application.Bot != nil {
		g.Go(func() error {
			application.Bot.Start(gctx, application.Updates)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case sig := <-quit:
			log.Infof("Получен сигнал %s, останавливаемся...", sig)
		case <-gctx.Done():
			log.Warn("Компонент остановился, завершаем остальные")
		}

		// Отменяем контекст: бот и long polling начнут завершаться
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		return application.Server.Shutdown(shutdownCtx)
	})

	log.Info("=== Сервис наград готов к работе ===")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Сервис остановлен с ошибкой")
	}

	log.Info("=== Сервис наград остановлен ===")
}

// setupLogging настраивает формат логов: text для разработки, json для сбора логов.
func setupLogging(format string) {
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
