package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
)

// errorResponse: тело ответа с ошибкой.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

var (
	notFound = []error{common.ErrTaskNotFound, common.ErrUnknownCode}
	// состояние аккаунта не допускает операцию
	conflict = []error{
		common.ErrWalletNotBound,
		common.ErrInsufficientBalance,
		common.ErrAlreadyClaimedToday,
		common.ErrStreakComplete,
		common.ErrClaimBeforeLast,
		common.ErrInvalidTransition,
		common.ErrAlreadyReferred,
		common.ErrTaskFull,
	}
	tooMany = []error{common.ErrOTPCooldown, common.ErrTooManyAttempts}
)

// statusFor выбирает HTTP-статус по ошибке.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case isAny(err, notFound):
		return fiber.StatusNotFound
	case isAny(err, conflict):
		return fiber.StatusConflict
	case isAny(err, tooMany):
		return fiber.StatusTooManyRequests
	case common.IsRejection(err):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError отвечает клиенту ошибкой. Отказ несёт сообщение и детали,
// сбой: только общий текст, подробности уходят в лог.
func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("Ошибка обработки запроса")
		return c.Status(status).JSON(errorResponse{
			Error: "внутренняя ошибка сервера",
			Code:  common.Code(err),
		})
	}

	msg := err.Error()
	var rej *common.Rejection
	if errors.As(err, &rej) {
		msg = rej.Err.Error()
	}
	return c.Status(status).JSON(errorResponse{
		Error:   msg,
		Code:    common.Code(err),
		Details: common.DetailsOf(err),
	})
}

// badRequest: тело запроса не разобрано.
func badRequest(c *fiber.Ctx, err error) error {
	log.WithError(err).WithField("path", c.Path()).Debug("Некорректное тело запроса")
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
		Error: "некорректный запрос",
		Code:  "BAD_REQUEST",
	})
}
