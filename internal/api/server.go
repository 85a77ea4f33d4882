// Package api: HTTP-интерфейс ядра наград для презентационного слоя и
// внешних сервисов (верификация, Discord, очередь проверки).
//
// Маршруты:
//
//	/v1/me/...     пользовательские, id аккаунта в X-Account-ID от шлюза
//	/internal/...  внешние сервисы, Authorization: Bearer SERVICE_TOKEN
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/api/middleware"
	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/ledger"
	"bitbee.app/rewards-core/internal/features/referral"
	"bitbee.app/rewards-core/internal/features/streak"
	"bitbee.app/rewards-core/internal/features/tasks"
	"bitbee.app/rewards-core/internal/features/wallet"
	"bitbee.app/rewards-core/internal/features/withdrawal"
)

// Services: сервисы, которые обслуживает API.
type Services struct {
	Ledger     *ledger.Service
	Streak     *streak.Service
	Tasks      *tasks.Service
	Referral   *referral.Service
	Withdrawal *withdrawal.Service
	Wallet     *wallet.Service
}

// Server: HTTP-сервер на fiber.
type Server struct {
	app  *fiber.App
	svc  Services
	addr string
	now  func() time.Time
}

// NewServer создаёт сервер и регистрирует маршруты.
func NewServer(cfg *config.Config, svc Services) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			ReadTimeout:           cfg.HTTPReadTimeout,
			WriteTimeout:          cfg.HTTPWriteTimeout,
			DisableStartupMessage: true,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				// ошибки роутера fiber (404, 405) и неперехваченные ошибки обработчиков
				var fe *fiber.Error
				if errors.As(err, &fe) {
					return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message, Code: "HTTP_ERROR"})
				}
				return writeError(c, err)
			},
		}),
		svc:  svc,
		addr: cfg.HTTPAddr,
		now:  common.Now,
	}
	s.routes(cfg)
	return s
}

func (s *Server) routes(cfg *config.Config) {
	s.app.Use(middleware.Recover())
	s.app.Use(middleware.RequestLogger())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	me := s.app.Group("/v1/me", middleware.AccountContext(),
		middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	me.Get("/balances", s.handleBalances)
	me.Get("/history", s.handleHistory)
	me.Get("/streak", s.handleStreakState)
	me.Post("/streak/claim", s.handleStreakClaim)
	me.Get("/tasks", s.handleTasks)
	me.Post("/tasks/:taskID/start", s.handleTaskStart)
	me.Post("/tasks/:taskID/submit", s.handleTaskSubmit)
	me.Post("/tasks/:taskID/resubmit", s.handleTaskResubmit)
	me.Get("/referral", s.handleReferralSummary)
	me.Post("/referral/code", s.handleReferralCode)
	me.Post("/referral/apply", s.handleReferralApply)
	me.Get("/withdrawals/quote", s.handleWithdrawalQuote)
	me.Post("/withdrawals/validate", s.handleWithdrawalValidate)
	me.Post("/withdrawals", s.handleWithdrawalExecute)
	me.Get("/wallet", s.handleWalletBinding)
	me.Post("/wallet/otp", s.handleWalletOTP)
	me.Post("/wallet/verify", s.handleWalletVerify)

	internal := s.app.Group("/internal", middleware.ServiceToken(cfg.ServiceToken))
	internal.Post("/tasks/:taskID/callback", s.handleTaskCallback)
	internal.Post("/tasks/:taskID/approve", s.handleTaskApprove)
	internal.Post("/tasks/:taskID/resubmit", s.handleTaskReject)
	internal.Get("/reviews", s.handlePendingReviews)
	internal.Get("/accounts/:accountID/audit", s.handleAudit)
}

// App возвращает fiber-приложение (для тестов).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen блокирует до остановки сервера.
func (s *Server) Listen() error {
	log.WithField("addr", s.addr).Info("HTTP сервер запущен")
	return s.app.Listen(s.addr)
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
