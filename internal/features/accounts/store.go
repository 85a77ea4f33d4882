// Package accounts: store.go описывает хранилище агрегата и общие
// проверки, которые обе реализации выполняют перед фиксацией изменений.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCodeTaken: сгенерированный реферальный код уже есть у другого аккаунта.
// ReferralTracker ловит её и генерирует новый код.
var ErrCodeTaken = errors.New("реферальный код уже занят")

// Store: хранилище аккаунтов.
//
// Update и UpdatePair: единица работы: fn получает копию агрегата под
// эксклюзивной блокировкой аккаунта; если fn вернула ошибку, ничего не
// сохраняется. Чтения возвращают согласованный снимок.
type Store interface {
	// Get возвращает снимок аккаунта; неизвестный id: пустой аккаунт.
	Get(ctx context.Context, id string) (*Account, error)
	// Update создаёт аккаунт при первом обращении и применяет fn атомарно.
	Update(ctx context.Context, id string, fn func(acc *Account) error) error
	// UpdatePair блокирует два разных аккаунта (в порядке id) и применяет fn атомарно.
	UpdatePair(ctx context.Context, firstID, secondID string, fn func(first, second *Account) error) error
	// FindByReferralCode возвращает id владельца кода или common.ErrUnknownCode.
	FindByReferralCode(ctx context.Context, code string) (string, error)
	// Events: страница журнала (новые сверху) и общее число событий.
	Events(ctx context.Context, id string, offset, limit int) ([]RewardEvent, int, error)
	// LedgerTotals: балансы и суммы событий по активам из одного снимка.
	LedgerTotals(ctx context.Context, id string) (balances, sums map[string]decimal.Decimal, err error)
	// PendingReviews: заявки в PendingReview по заданиям taskIDs, поданные раньше before, старые сверху.
	PendingReviews(ctx context.Context, taskIDs []string, before time.Time, limit int) ([]PendingReview, error)
	// TaskParticipants: сколько аккаунтов заняли место в кампании.
	TaskParticipants(ctx context.Context, taskID string) (int, error)
}

// checkCommit проверяет инварианты агрегата перед сохранением:
// балансы неотрицательны, изменение баланса равно сумме новых событий,
// реферальный код и пригласивший не перезаписываются.
func checkCommit(before, after *Account) error {
	if after.ID != before.ID {
		return fmt.Errorf("аккаунт %s: нельзя менять id", before.ID)
	}
	if before.ReferralCode != "" && after.ReferralCode != before.ReferralCode {
		return fmt.Errorf("аккаунт %s: реферальный код неизменяем", before.ID)
	}
	if before.ReferredBy != "" && after.ReferredBy != before.ReferredBy {
		return fmt.Errorf("аккаунт %s: пригласивший неизменяем", before.ID)
	}

	delta := make(map[string]decimal.Decimal)
	for _, ev := range after.pending {
		if ev.AccountID != after.ID {
			return fmt.Errorf("аккаунт %s: событие %s чужого аккаунта", after.ID, ev.ID)
		}
		if !ev.Kind.Valid() || ev.Amount.IsZero() {
			return fmt.Errorf("аккаунт %s: некорректное событие %s", after.ID, ev.ID)
		}
		delta[ev.Asset] = delta[ev.Asset].Add(ev.Amount)
	}

	assets := make(map[string]struct{})
	for a := range before.Balances {
		assets[a] = struct{}{}
	}
	for a := range after.Balances {
		assets[a] = struct{}{}
	}
	for a := range delta {
		assets[a] = struct{}{}
	}
	for a := range assets {
		nb := after.Balances[a]
		if nb.IsNegative() {
			return fmt.Errorf("аккаунт %s: отрицательный баланс %s", after.ID, a)
		}
		if !nb.Sub(before.Balances[a]).Equal(delta[a]) {
			return fmt.Errorf("аккаунт %s: баланс %s изменён без события журнала", after.ID, a)
		}
	}
	return nil
}
