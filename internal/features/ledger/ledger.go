// Package ledger: ledger.go содержит операции над агрегатом аккаунта.
// Их вызывают внутри единицы работы Store: стрик, задания, рефералы и вывод
// начисляют и списывают в той же транзакции, что и меняют своё состояние.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/features/accounts"
)

// Credit начисляет amount актива asset и добавляет положительное событие.
//
// Параметры:
//   - acc: агрегат из текущей единицы работы
//   - amount: строго больше нуля, иначе ErrInvalidAmount
//   - kind: тип события (daily-streak, task-completion, referral-bonus)
//   - sourceTaskID: id задания для task-completion, иначе пусто
func Credit(acc *accounts.Account, asset string, amount decimal.Decimal, kind accounts.EventKind, sourceTaskID string, now time.Time) (accounts.RewardEvent, error) {
	asset, err := checkOperation(asset, amount)
	if err != nil {
		return accounts.RewardEvent{}, err
	}

	ev := accounts.RewardEvent{
		ID:           uuid.NewString(),
		AccountID:    acc.ID,
		Kind:         kind,
		Asset:        asset,
		Amount:       amount,
		Timestamp:    now,
		SourceTaskID: sourceTaskID,
	}
	acc.Balances[asset] = acc.Balance(asset).Add(amount)
	acc.Append(ev)
	return ev, nil
}

// Debit списывает amount актива asset и добавляет отрицательное событие.
// Баланс не может уйти в минус: ErrInsufficientBalance с доступной суммой.
func Debit(acc *accounts.Account, asset string, amount decimal.Decimal, kind accounts.EventKind, now time.Time) (accounts.RewardEvent, error) {
	asset, err := checkOperation(asset, amount)
	if err != nil {
		return accounts.RewardEvent{}, err
	}

	available := acc.Balance(asset)
	if amount.GreaterThan(available) {
		return accounts.RewardEvent{}, common.Reject(common.ErrInsufficientBalance,
			"asset", asset,
			"available", common.FormatValue(available),
			"requested", common.FormatValue(amount),
		)
	}

	ev := accounts.RewardEvent{
		ID:        uuid.NewString(),
		AccountID: acc.ID,
		Kind:      kind,
		Asset:     asset,
		Amount:    amount.Neg(),
		Timestamp: now,
	}
	acc.Balances[asset] = available.Sub(amount)
	acc.Append(ev)
	return ev, nil
}

func checkOperation(asset string, amount decimal.Decimal) (string, error) {
	asset = common.NormalizeAsset(asset)
	if asset == "" {
		return "", common.ErrUnsupportedAsset
	}
	if !amount.IsPositive() {
		return "", common.Reject(common.ErrInvalidAmount, "amount", amount.String())
	}
	return asset, nil
}
