// Package ledger: service.go отвечает за балансы, начисления и списания от имени
// внешних вызовов, историю наград и сверку с журналом.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/features/accounts"
)

// Service управляет леджером наград.
type Service struct {
	store accounts.Store
	now   func() time.Time
}

// NewService создаёт сервис леджера.
func NewService(store accounts.Store) *Service {
	return &Service{store: store, now: common.Now}
}

// Credit начисляет награду отдельной единицей работы.
func (s *Service) Credit(ctx context.Context, accountID, asset string, amount decimal.Decimal, kind accounts.EventKind, sourceTaskID string) (accounts.RewardEvent, error) {
	var ev accounts.RewardEvent
	err := s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		var err error
		ev, err = Credit(acc, asset, amount, kind, sourceTaskID, s.now())
		return err
	})
	if err != nil {
		return accounts.RewardEvent{}, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"asset":      ev.Asset,
		"amount":     ev.Amount.String(),
		"kind":       ev.Kind,
	}).Info("Начисление выполнено")
	return ev, nil
}

// Debit списывает сумму отдельной единицей работы.
func (s *Service) Debit(ctx context.Context, accountID, asset string, amount decimal.Decimal, kind accounts.EventKind) (accounts.RewardEvent, error) {
	var ev accounts.RewardEvent
	err := s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		var err error
		ev, err = Debit(acc, asset, amount, kind, s.now())
		return err
	})
	if err != nil {
		return accounts.RewardEvent{}, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"asset":      ev.Asset,
		"amount":     ev.Amount.String(),
		"kind":       ev.Kind,
	}).Info("Списание выполнено")
	return ev, nil
}

// GetBalance возвращает баланс актива.
func (s *Service) GetBalance(ctx context.Context, accountID, asset string) (decimal.Decimal, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance(common.NormalizeAsset(asset)), nil
}

// Balances возвращает все балансы аккаунта одним снимком.
func (s *Service) Balances(ctx context.Context, accountID string) (map[string]decimal.Decimal, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acc.Balances, nil
}

// History возвращает страницу истории наград (нумерация с 1).
func (s *Service) History(ctx context.Context, accountID string, page int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	events, total, err := s.store.Events(ctx, accountID, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(events))
	for _, ev := range events {
		items = append(items, HistoryItem{
			RewardEvent: ev,
			Title:       Title(ev.Kind),
			Display:     common.FormatSigned(ev.Asset, ev.Amount),
			Date:        common.FormatDateTime(ev.Timestamp),
		})
	}
	return &HistoryPage{
		Items:      items,
		Page:       page,
		PageSize:   PageSize,
		Total:      total,
		TotalPages: (total + PageSize - 1) / PageSize,
	}, nil
}

// Audit пересчитывает балансы из журнала и сравнивает с текущими.
// Расхождение: авария, а не отказ: ErrLedgerMismatch с активом и суммами.
func (s *Service) Audit(ctx context.Context, accountID string) error {
	balances, sums, err := s.store.LedgerTotals(ctx, accountID)
	if err != nil {
		return err
	}

	assets := make(map[string]struct{})
	for a := range balances {
		assets[a] = struct{}{}
	}
	for a := range sums {
		assets[a] = struct{}{}
	}
	for a := range assets {
		if !balances[a].Equal(sums[a]) {
			log.WithFields(log.Fields{
				"account_id": accountID,
				"asset":      a,
				"balance":    balances[a].String(),
				"events_sum": sums[a].String(),
			}).Error("Баланс разошёлся с журналом")
			return common.Reject(common.ErrLedgerMismatch,
				"asset", a, "balance", balances[a].String(), "events_sum", sums[a].String())
		}
	}
	return nil
}
