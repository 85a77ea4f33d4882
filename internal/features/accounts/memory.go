// Package accounts: memory.go реализует хранилище в памяти процесса.
// Используется в тестах и при APP_STORAGE=memory для локальной разработки.
package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/common"
)

// MemoryStore реализует Store поверх карт в памяти.
// Писатели сериализуются Locker'ом по аккаунту, фиксация и чтения идут под mu,
// поэтому читатель видит аккаунт либо до, либо после единицы работы.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*Account
	events       map[string][]RewardEvent
	codes        map[string]string              // код → id аккаунта
	participants map[string]map[string]struct{} // задание → аккаунты
	locks        *Locker
	now          func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*Account),
		events:       make(map[string][]RewardEvent),
		codes:        make(map[string]string),
		participants: make(map[string]map[string]struct{}),
		locks:        NewLocker(),
		now:          common.Now,
	}
}

// Get возвращает копию аккаунта.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok {
		return acc.Clone(), nil
	}
	return New(id, m.now()), nil
}

// Update применяет fn к одному аккаунту.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(acc *Account) error) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	return m.apply(ctx, []string{id}, func(accs []*Account) error {
		return fn(accs[0])
	})
}

// UpdatePair применяет fn к двум разным аккаунтам.
func (m *MemoryStore) UpdatePair(ctx context.Context, firstID, secondID string, fn func(first, second *Account) error) error {
	if firstID == secondID {
		return fmt.Errorf("UpdatePair: один и тот же аккаунт %s", firstID)
	}
	unlock := m.locks.Lock(firstID, secondID)
	defer unlock()
	return m.apply(ctx, []string{firstID, secondID}, func(accs []*Account) error {
		return fn(accs[0], accs[1])
	})
}

func (m *MemoryStore) apply(ctx context.Context, ids []string, fn func(accs []*Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	before := make([]*Account, len(ids))
	work := make([]*Account, len(ids))
	m.mu.RLock()
	for i, id := range ids {
		if acc, ok := m.accounts[id]; ok {
			before[i] = acc.Clone()
		} else {
			before[i] = New(id, now)
		}
		work[i] = before[i].Clone()
	}
	m.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Сначала все проверки, потом запись: отказ не оставляет следов
	for i, acc := range work {
		if err := checkCommit(before[i], acc); err != nil {
			return err
		}
		if acc.ReferralCode != "" && acc.ReferralCode != before[i].ReferralCode {
			if owner, ok := m.codes[acc.ReferralCode]; ok && owner != acc.ID {
				return ErrCodeTaken
			}
		}
		for _, c := range acc.claims {
			set := m.participants[c.TaskID]
			if _, ok := set[acc.ID]; !ok && len(set) >= c.Limit {
				return common.Reject(common.ErrTaskFull, "task_id", c.TaskID, "limit", fmt.Sprint(c.Limit))
			}
		}
	}

	for _, acc := range work {
		for _, c := range acc.claims {
			if m.participants[c.TaskID] == nil {
				m.participants[c.TaskID] = make(map[string]struct{})
			}
			m.participants[c.TaskID][acc.ID] = struct{}{}
		}
		if acc.ReferralCode != "" {
			m.codes[acc.ReferralCode] = acc.ID
		}
		m.events[acc.ID] = append(m.events[acc.ID], acc.pending...)
		acc.UpdatedAt = now
		m.accounts[acc.ID] = acc.Clone()
	}
	return nil
}

// FindByReferralCode ищет владельца кода.
func (m *MemoryStore) FindByReferralCode(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return "", common.ErrUnknownCode
	}
	return id, nil
}

// Events возвращает страницу журнала, новые события сверху.
func (m *MemoryStore) Events(ctx context.Context, id string, offset, limit int) ([]RewardEvent, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[id]
	total := len(all)
	out := make([]RewardEvent, 0, limit)
	// журнал хранится в порядке добавления, отдаём с конца
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

// LedgerTotals возвращает балансы и суммы событий из одного снимка.
func (m *MemoryStore) LedgerTotals(ctx context.Context, id string) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	balances := make(map[string]decimal.Decimal)
	if acc, ok := m.accounts[id]; ok {
		for a, v := range acc.Balances {
			balances[a] = v
		}
	}
	sums := make(map[string]decimal.Decimal)
	for _, ev := range m.events[id] {
		sums[ev.Asset] = sums[ev.Asset].Add(ev.Amount)
	}
	return balances, sums, nil
}

// PendingReviews возвращает заявки на проверке, старые сверху.
func (m *MemoryStore) PendingReviews(ctx context.Context, taskIDs []string, before time.Time, limit int) ([]PendingReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = struct{}{}
	}

	m.mu.RLock()
	var out []PendingReview
	for _, acc := range m.accounts {
		for _, st := range acc.Tasks {
			if st.State != TaskPendingReview || st.SubmittedAt == nil || !st.SubmittedAt.Before(before) {
				continue
			}
			if _, ok := wanted[st.TaskID]; !ok {
				continue
			}
			out = append(out, PendingReview{
				AccountID:   acc.ID,
				TaskID:      st.TaskID,
				Payload:     st.Payload,
				Platform:    st.Platform,
				SubmittedAt: *st.SubmittedAt,
			})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TaskParticipants: число занятых мест в кампании.
func (m *MemoryStore) TaskParticipants(ctx context.Context, taskID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.participants[taskID]), nil
}
