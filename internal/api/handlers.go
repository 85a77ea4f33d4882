package api

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/api/middleware"
	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/features/tasks"
	"bitbee.app/rewards-core/internal/features/withdrawal"
)

type balanceView struct {
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

type submitRequest struct {
	Payload  string `json:"payload"`
	Platform string `json:"platform"`
}

type callbackRequest struct {
	AccountID string `json:"accountId"`
	Payload   string `json:"payload"`
}

type withdrawalRequest struct {
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Target      string          `json:"target"`
}

// --- Балансы и история ---

func (s *Server) handleBalances(c *fiber.Ctx) error {
	balances, err := s.svc.Ledger.Balances(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}

	out := make([]balanceView, 0, len(balances))
	for asset, v := range balances {
		out = append(out, balanceView{Asset: asset, Amount: v, Display: common.FormatValue(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return c.JSON(fiber.Map{"balances": out})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	page, err := s.svc.Ledger.History(c.UserContext(), middleware.AccountID(c), c.QueryInt("page", 1))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

// --- Стрик ---

func (s *Server) handleStreakState(c *fiber.Ctx) error {
	v, err := s.svc.Streak.State(c.UserContext(), middleware.AccountID(c), s.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(v)
}

func (s *Server) handleStreakClaim(c *fiber.Ctx) error {
	res, err := s.svc.Streak.ClaimDaily(c.UserContext(), middleware.AccountID(c), s.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// --- Задания ---

func (s *Server) handleTasks(c *fiber.Ctx) error {
	views, err := s.svc.Tasks.Statuses(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"tasks": views})
}

func (s *Server) handleTaskStart(c *fiber.Ctx) error {
	st, err := s.svc.Tasks.StartTask(c.UserContext(), middleware.AccountID(c), c.Params("taskID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// handleTaskSubmit: ссылка или email от пользователя.
// Задания с внешним подтверждением закрываются только через /internal.
func (s *Server) handleTaskSubmit(c *fiber.Ctx) error {
	taskID := c.Params("taskID")
	if def, ok := s.svc.Tasks.Catalog().Get(taskID); ok && def.Mode == tasks.ModeInstantCallback {
		return writeError(c, common.ErrUnauthorized)
	}

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	st, err := s.svc.Tasks.Submit(c.UserContext(), middleware.AccountID(c), taskID,
		tasks.Submission{Payload: req.Payload, Platform: req.Platform})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleTaskResubmit(c *fiber.Ctx) error {
	st, err := s.svc.Tasks.Resubmit(c.UserContext(), middleware.AccountID(c), c.Params("taskID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// --- Рефералы ---

func (s *Server) handleReferralSummary(c *fiber.Ctx) error {
	sum, err := s.svc.Referral.Summary(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(sum)
}

func (s *Server) handleReferralCode(c *fiber.Ctx) error {
	code, err := s.svc.Referral.GenerateCode(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"referralCode": code, "referralLink": s.svc.Referral.Link(code)})
}

func (s *Server) handleReferralApply(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := s.svc.Referral.ApplyReferral(c.UserContext(), middleware.AccountID(c), req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// --- Вывод ---

func (s *Server) handleWithdrawalQuote(c *fiber.Ctx) error {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return writeError(c, common.Reject(common.ErrInvalidAmount, "amount", c.Query("amount")))
	}
	asset := c.Query("asset")
	est, err := s.svc.Withdrawal.Quote(asset, amount, c.Query("target", withdrawal.TargetTWD))
	if err != nil {
		return writeError(c, err)
	}
	resp := fiber.Map{"asset": common.NormalizeAsset(asset), "estimate": est}
	if minimum, ok := s.svc.Withdrawal.Minimum(asset); ok {
		resp["minimum"] = common.FormatValue(minimum)
	}
	return c.JSON(resp)
}

func (s *Server) handleWithdrawalValidate(c *fiber.Ctx) error {
	req, err := s.parseWithdrawal(c)
	if err != nil {
		return badRequest(c, err)
	}
	if err := s.svc.Withdrawal.Validate(c.UserContext(), req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleWithdrawalExecute(c *fiber.Ctx) error {
	req, err := s.parseWithdrawal(c)
	if err != nil {
		return badRequest(c, err)
	}
	ev, err := s.svc.Withdrawal.Execute(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

func (s *Server) parseWithdrawal(c *fiber.Ctx) (withdrawal.Request, error) {
	var body withdrawalRequest
	if err := c.BodyParser(&body); err != nil {
		return withdrawal.Request{}, err
	}
	return withdrawal.Request{
		AccountID:   middleware.AccountID(c),
		Asset:       body.Asset,
		Amount:      body.Amount,
		Destination: body.Destination,
		Target:      body.Target,
	}, nil
}

// --- Кошелёк ---

func (s *Server) handleWalletBinding(c *fiber.Ctx) error {
	b, err := s.svc.Wallet.Binding(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

func (s *Server) handleWalletOTP(c *fiber.Ctx) error {
	var req struct {
		ExchangeUID string `json:"exchangeUid"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	ch, err := s.svc.Wallet.RequestOTP(c.UserContext(), middleware.AccountID(c), req.ExchangeUID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ch)
}

func (s *Server) handleWalletVerify(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	b, err := s.svc.Wallet.VerifyOTP(c.UserContext(), middleware.AccountID(c), req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

// --- Внешние сервисы ---

// handleTaskCallback: подтверждение от провайдера верификации или Discord.
func (s *Server) handleTaskCallback(c *fiber.Ctx) error {
	req, err := parseCallback(c)
	if err != nil {
		return badRequest(c, err)
	}
	st, err := s.svc.Tasks.Submit(c.UserContext(), req.AccountID, c.Params("taskID"), tasks.Submission{Payload: req.Payload})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleTaskApprove(c *fiber.Ctx) error {
	req, err := parseCallback(c)
	if err != nil {
		return badRequest(c, err)
	}
	st, err := s.svc.Tasks.Approve(c.UserContext(), req.AccountID, c.Params("taskID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleTaskReject(c *fiber.Ctx) error {
	req, err := parseCallback(c)
	if err != nil {
		return badRequest(c, err)
	}
	st, err := s.svc.Tasks.Resubmit(c.UserContext(), req.AccountID, c.Params("taskID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handlePendingReviews(c *fiber.Ctx) error {
	list, err := s.svc.Tasks.PendingReviews(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"reviews": list})
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	id := c.Params("accountID")
	if err := s.svc.Ledger.Audit(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"accountId": id, "consistent": true})
}

// parseCallback разбирает тело запроса внешнего сервиса; accountId обязателен.
func parseCallback(c *fiber.Ctx) (callbackRequest, error) {
	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return req, err
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		return req, fiber.ErrBadRequest
	}
	return req, nil
}
