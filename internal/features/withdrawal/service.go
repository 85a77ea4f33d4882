// Package withdrawal: service.go содержит проверку и исполнение вывода.
package withdrawal

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
)

// Service проверяет и исполняет заявки на вывод.
type Service struct {
	store    accounts.Store
	executor Executor
	minimums map[string]decimal.Decimal
	rates    map[string]decimal.Decimal
	now      func() time.Time
}

// NewService создаёт сервис вывода. executor == nil: поручения только логируются.
func NewService(store accounts.Store, executor Executor, cfg *config.Config) *Service {
	if executor == nil {
		executor = LogExecutor{}
	}
	return &Service{
		store:    store,
		executor: executor,
		minimums: cfg.Minimums(),
		rates:    cfg.TWDRates(),
		now:      common.Now,
	}
}

// Minimum: минимальная сумма вывода актива.
func (s *Service) Minimum(asset string) (decimal.Decimal, bool) {
	m, ok := s.minimums[common.NormalizeAsset(asset)]
	return m, ok
}

// Validate проверяет заявку по текущему снимку аккаунта.
// Первая непройденная проверка определяет отказ.
func (s *Service) Validate(ctx context.Context, req Request) error {
	acc, err := s.store.Get(ctx, req.AccountID)
	if err != nil {
		return err
	}
	_, err = s.check(acc, req)
	return err
}

// Execute повторно проверяет заявку под блокировкой аккаунта, списывает
// сумму и передаёт событие списания исполнителю.
func (s *Service) Execute(ctx context.Context, req Request) (accounts.RewardEvent, error) {
	var in Instruction
	err := s.store.Update(ctx, req.AccountID, func(acc *accounts.Account) error {
		dest, err := s.check(acc, req)
		if err != nil {
			return err
		}
		ev, err := ledger.Debit(acc, req.Asset, req.Amount, accounts.KindWithdrawalDebit, s.now())
		if err != nil {
			return err
		}
		in = Instruction{Event: ev, Destination: dest}
		return nil
	})
	if err != nil {
		if common.IsRejection(err) {
			log.WithError(err).WithField("account_id", req.AccountID).Debug("Вывод отклонён")
		}
		return accounts.RewardEvent{}, err
	}

	if est, err := s.Quote(in.Event.Asset, req.Amount, req.Target); err == nil {
		in.Estimate = est
	}
	log.WithFields(log.Fields{
		"account_id": req.AccountID,
		"event_id":   in.Event.ID,
		"amount":     common.FormatAmount(in.Event.Asset, req.Amount),
	}).Info("Вывод исполнен")

	if err := s.executor.Execute(ctx, in); err != nil {
		log.WithError(err).WithField("event_id", in.Event.ID).Error("Исполнитель не принял поручение на вывод")
	}
	return in.Event, nil
}

// Quote оценивает сумму в TWD по настроенному курсу.
// Для Other оценки нет: возвращается nil.
func (s *Service) Quote(asset string, amount decimal.Decimal, target string) (*Estimate, error) {
	if strings.EqualFold(target, TargetOther) {
		return nil, nil
	}
	rate, ok := s.rates[common.NormalizeAsset(asset)]
	if !ok {
		return nil, common.Reject(common.ErrUnsupportedAsset, "asset", asset)
	}
	value := amount.Mul(rate).Round(2)
	return &Estimate{
		Currency: TargetTWD,
		Value:    value,
		Display:  "≈ " + common.FormatAmount(TargetTWD, value),
	}, nil
}

// check: проверки вывода по порядку:
//  1. сумма положительна
//  2. сумма не больше баланса
//  3. сумма не меньше минимума актива (актив без минимума не выводится)
//  4. есть адрес назначения (по умолчанию привязанный кошелёк)
//
// Возвращает адрес назначения.
func (s *Service) check(acc *accounts.Account, req Request) (string, error) {
	asset := common.NormalizeAsset(req.Asset)
	if !req.Amount.IsPositive() {
		return "", common.Reject(common.ErrInvalidAmount, "amount", req.Amount.String())
	}

	available := acc.Balance(asset)
	if req.Amount.GreaterThan(available) {
		return "", common.Reject(common.ErrInsufficientBalance,
			"asset", asset,
			"available", common.FormatValue(available),
			"requested", common.FormatValue(req.Amount),
		)
	}

	minimum, ok := s.minimums[asset]
	if !ok {
		return "", common.Reject(common.ErrUnsupportedAsset, "asset", asset)
	}
	if req.Amount.LessThan(minimum) {
		return "", common.Reject(common.ErrBelowMinimum,
			"asset", asset,
			"minimum", common.FormatValue(minimum),
		)
	}

	dest := strings.TrimSpace(req.Destination)
	if dest == "" && acc.Wallet != nil {
		dest = acc.Wallet.ExchangeUID
	}
	if dest == "" {
		return "", common.ErrWalletNotBound
	}
	return dest, nil
}
