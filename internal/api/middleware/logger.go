package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
)

// RequestLogger логирует запрос: метод, путь, статус, время, аккаунт.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		entry := log.WithFields(log.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"account_id": AccountID(c),
		})
		if status >= fiber.StatusInternalServerError {
			entry.Warn("HTTP запрос завершился ошибкой")
		} else {
			entry.Debug("HTTP запрос")
		}
		return err
	}
}

// Recover перехватывает панику в обработчике. Ошибка уходит в ErrorHandler
// сервера и превращается в 500.
func Recover() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, r interface{}) {
			log.WithFields(log.Fields{
				"component": "panic_recovery",
				"panic":     fmt.Sprintf("%v", r),
				"path":      c.Path(),
				"stack":     string(debug.Stack()),
			}).Error("ПАНИКА в обработчике: восстановлено")
		},
	})
}
