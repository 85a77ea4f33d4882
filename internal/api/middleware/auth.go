// Package middleware содержит промежуточные обработчики HTTP: контекст
// аккаунта, токен внутренних сервисов, логирование, восстановление после
// паники и rate-limiting.
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
)

const (
	// HeaderAccountID: id аккаунта, который проставляет шлюз после аутентификации
	HeaderAccountID = "X-Account-ID"
	localAccountID  = "account_id"
)

// AccountContext требует X-Account-ID и кладёт его в Locals.
func AccountContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderAccountID))
		if id == "" {
			log.WithField("path", c.Path()).Debug("Запрос без X-Account-ID")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": common.ErrUnauthorized.Error(),
				"code":  common.Code(common.ErrUnauthorized),
			})
		}
		c.Locals(localAccountID, id)
		return c.Next()
	}
}

// AccountID возвращает id аккаунта из AccountContext (пусто, если его нет).
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)
	return id
}

// ServiceToken пропускает только запросы с "Authorization: Bearer <token>".
// Пустой token закрывает доступ полностью.
func ServiceToken(token string) fiber.Handler {
	expected := []byte(token)
	return func(c *fiber.Ctx) error {
		got := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			log.WithFields(log.Fields{"path": c.Path(), "ip": c.IP()}).Warn("Неверный токен сервиса")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": common.ErrUnauthorized.Error(),
				"code":  common.Code(common.ErrUnauthorized),
			})
		}
		return c.Next()
	}
}
