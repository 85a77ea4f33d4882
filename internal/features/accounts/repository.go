// Package accounts: repository.go реализует Store поверх PostgreSQL.
// Каждая единица работы: одна транзакция: строка аккаунта блокируется
// SELECT ... FOR UPDATE, изменения записываются целиком или не записываются вовсе.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/db/postgres"
)

// referralCodeConstraint: имя UNIQUE-ограничения на accounts.referral_code.
const referralCodeConstraint = "accounts_referral_code_key"

// Repository хранит аккаунты в PostgreSQL.
type Repository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewRepository создаёт репозиторий аккаунтов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db, now: common.Now}
}

// Get читает аккаунт в read-only транзакции REPEATABLE READ.
func (r *Repository) Get(ctx context.Context, id string) (*Account, error) {
	var acc *Account
	err := postgres.InTx(ctx, r.db, postgres.ReadOnlySnapshot, func(tx pgx.Tx) error {
		var err error
		acc, err = loadAccount(ctx, tx, id, false)
		if errors.Is(err, pgx.ErrNoRows) {
			acc = New(id, r.now())
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Update блокирует строку аккаунта и применяет fn.
func (r *Repository) Update(ctx context.Context, id string, fn func(acc *Account) error) error {
	return r.apply(ctx, []string{id}, func(accs []*Account) error {
		return fn(accs[0])
	})
}

// UpdatePair блокирует две строки в порядке id и применяет fn.
func (r *Repository) UpdatePair(ctx context.Context, firstID, secondID string, fn func(first, second *Account) error) error {
	if firstID == secondID {
		return fmt.Errorf("UpdatePair: один и тот же аккаунт %s", firstID)
	}
	return r.apply(ctx, []string{firstID, secondID}, func(accs []*Account) error {
		return fn(accs[0], accs[1])
	})
}

func (r *Repository) apply(ctx context.Context, ids []string, fn func(accs []*Account) error) error {
	err := postgres.InTx(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		// блокируем в отсортированном порядке, чтобы пары не ждали друг друга по кругу
		order := append([]string(nil), ids...)
		sort.Strings(order)
		loaded := make(map[string]*Account, len(ids))
		for _, id := range order {
			if _, err := tx.Exec(ctx,
				`INSERT INTO accounts (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`, id,
			); err != nil {
				return fmt.Errorf("ошибка создания аккаунта %s: %w", id, err)
			}
			acc, err := loadAccount(ctx, tx, id, true)
			if err != nil {
				return err
			}
			loaded[id] = acc
		}

		before := make([]*Account, len(ids))
		work := make([]*Account, len(ids))
		for i, id := range ids {
			before[i] = loaded[id]
			work[i] = loaded[id].Clone()
		}

		if err := fn(work); err != nil {
			return err
		}

		now := r.now()
		for i := range work {
			if err := checkCommit(before[i], work[i]); err != nil {
				return err
			}
			if err := saveAccount(ctx, tx, before[i], work[i], now); err != nil {
				return err
			}
		}
		return nil
	})
	if postgres.IsUniqueViolation(err, referralCodeConstraint) {
		return ErrCodeTaken
	}
	return err
}

// loadAccount читает агрегат целиком. forUpdate: блокировать строку аккаунта.
func loadAccount(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*Account, error) {
	query := `
		SELECT account_id, COALESCE(referral_code, ''), COALESCE(referred_by, ''), referral_count,
		       streak_day_index, streak_days, streak_last_claimed_at,
		       wallet_exchange_uid, wallet_bound_at, created_at, updated_at
		FROM accounts
		WHERE account_id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	acc := New(id, time.Time{})
	var (
		days      []bool
		walletUID *string
		boundAt   *time.Time
	)
	err := tx.QueryRow(ctx, query, id).Scan(
		&acc.ID, &acc.ReferralCode, &acc.ReferredBy, &acc.ReferralCount,
		&acc.Streak.CurrentDayIndex, &days, &acc.Streak.LastClaimedAt,
		&walletUID, &boundAt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка чтения аккаунта (account_id=%s): %w", id, err)
	}
	copy(acc.Streak.DayCompleted[:], days)
	if walletUID != nil && boundAt != nil {
		acc.Wallet = &WalletBinding{ExchangeUID: *walletUID, BoundAt: *boundAt}
	}

	rows, err := tx.Query(ctx, `SELECT asset, balance::text FROM balances WHERE account_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения балансов: %w", err)
	}
	for rows.Next() {
		var asset, raw string
		if err := rows.Scan(&asset, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования баланса: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("баланс %s: %w", asset, err)
		}
		acc.Balances[asset] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения балансов: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT task_id, state, payload, platform, submitted_at, completed_at, updated_at
		FROM task_statuses
		WHERE account_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статусов заданий: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st    TaskStatus
			state string
		)
		if err := rows.Scan(&st.TaskID, &state, &st.Payload, &st.Platform,
			&st.SubmittedAt, &st.CompletedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса задания: %w", err)
		}
		st.State = TaskState(state)
		acc.Tasks[st.TaskID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения статусов заданий: %w", err)
	}
	return acc, nil
}

// saveAccount записывает разницу между before и after в рамках транзакции.
func saveAccount(ctx context.Context, tx pgx.Tx, before, after *Account, now time.Time) error {
	var (
		walletUID *string
		boundAt   *time.Time
	)
	if after.Wallet != nil {
		walletUID = &after.Wallet.ExchangeUID
		boundAt = &after.Wallet.BoundAt
	}
	if _, err := tx.Exec(ctx, `
		UPDATE accounts
		SET referral_code = NULLIF($2, ''), referred_by = NULLIF($3, ''), referral_count = $4,
		    streak_day_index = $5, streak_days = $6, streak_last_claimed_at = $7,
		    wallet_exchange_uid = $8, wallet_bound_at = $9, updated_at = $10
		WHERE account_id = $1
	`, after.ID, after.ReferralCode, after.ReferredBy, after.ReferralCount,
		after.Streak.CurrentDayIndex, after.Streak.DayCompleted[:], after.Streak.LastClaimedAt,
		walletUID, boundAt, now,
	); err != nil {
		return fmt.Errorf("ошибка обновления аккаунта: %w", err)
	}

	for asset, v := range after.Balances {
		if old, ok := before.Balances[asset]; ok && old.Equal(v) {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (account_id, asset, balance, updated_at)
			VALUES ($1, $2, $3::numeric, $4)
			ON CONFLICT (account_id, asset) DO UPDATE
			SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		`, after.ID, asset, v.String(), now); err != nil {
			return fmt.Errorf("ошибка записи баланса %s: %w", asset, err)
		}
	}

	for _, ev := range after.pending {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reward_events (event_id, account_id, kind, asset, amount, source_task_id, created_at)
			VALUES ($1::uuid, $2, $3, $4, $5::numeric, NULLIF($6, ''), $7)
		`, ev.ID, ev.AccountID, string(ev.Kind), ev.Asset, ev.Amount.String(),
			ev.SourceTaskID, ev.Timestamp); err != nil {
			return fmt.Errorf("ошибка записи события: %w", err)
		}
	}

	for taskID, st := range after.Tasks {
		if old, ok := before.Tasks[taskID]; ok && sameTask(old, st) {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_statuses (account_id, task_id, state, payload, platform, submitted_at, completed_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (account_id, task_id) DO UPDATE
			SET state = EXCLUDED.state, payload = EXCLUDED.payload, platform = EXCLUDED.platform,
			    submitted_at = EXCLUDED.submitted_at, completed_at = EXCLUDED.completed_at,
			    updated_at = EXCLUDED.updated_at
		`, after.ID, taskID, string(st.State), st.Payload, st.Platform,
			st.SubmittedAt, st.CompletedAt, st.UpdatedAt); err != nil {
			return fmt.Errorf("ошибка записи статуса задания %s: %w", taskID, err)
		}
	}

	for _, c := range after.claims {
		if err := claimParticipant(ctx, tx, after.ID, c, now); err != nil {
			return err
		}
	}
	return nil
}

// claimParticipant занимает место в кампании. Строка task_quotas блокируется,
// чтобы параллельные заявки разных аккаунтов не превысили лимит.
func claimParticipant(ctx context.Context, tx pgx.Tx, accountID string, c ParticipantClaim, now time.Time) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO task_quotas (task_id) VALUES ($1) ON CONFLICT (task_id) DO NOTHING`, c.TaskID,
	); err != nil {
		return fmt.Errorf("ошибка создания квоты %s: %w", c.TaskID, err)
	}
	var used int
	if err := tx.QueryRow(ctx,
		`SELECT used FROM task_quotas WHERE task_id = $1 FOR UPDATE`, c.TaskID,
	).Scan(&used); err != nil {
		return fmt.Errorf("ошибка чтения квоты %s: %w", c.TaskID, err)
	}

	var joined bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM task_participants WHERE task_id = $1 AND account_id = $2)`,
		c.TaskID, accountID,
	).Scan(&joined); err != nil {
		return fmt.Errorf("ошибка проверки участника: %w", err)
	}
	if joined {
		return nil
	}
	if used >= c.Limit {
		return common.Reject(common.ErrTaskFull, "task_id", c.TaskID, "limit", fmt.Sprint(c.Limit))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO task_participants (task_id, account_id, joined_at) VALUES ($1, $2, $3)`,
		c.TaskID, accountID, now,
	); err != nil {
		return fmt.Errorf("ошибка записи участника: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE task_quotas SET used = used + 1 WHERE task_id = $1`, c.TaskID,
	); err != nil {
		return fmt.Errorf("ошибка обновления квоты: %w", err)
	}
	return nil
}

func sameTask(a, b TaskStatus) bool {
	return a.State == b.State && a.Payload == b.Payload && a.Platform == b.Platform &&
		equalTime(a.SubmittedAt, b.SubmittedAt) && equalTime(a.CompletedAt, b.CompletedAt)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// FindByReferralCode ищет владельца кода.
func (r *Repository) FindByReferralCode(ctx context.Context, code string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT account_id FROM accounts WHERE referral_code = $1`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.ErrUnknownCode
		}
		return "", fmt.Errorf("ошибка поиска реферального кода: %w", err)
	}
	return id, nil
}

// Events возвращает страницу журнала, новые события сверху.
func (r *Repository) Events(ctx context.Context, id string, offset, limit int) ([]RewardEvent, int, error) {
	var (
		events []RewardEvent
		total  int
	)
	err := postgres.InTx(ctx, r.db, postgres.ReadOnlySnapshot, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM reward_events WHERE account_id = $1`, id,
		).Scan(&total); err != nil {
			return fmt.Errorf("ошибка подсчёта событий: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT event_id::text, account_id, kind, asset, amount::text,
			       COALESCE(source_task_id, ''), created_at
			FROM reward_events
			WHERE account_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2 OFFSET $3
		`, id, limit, offset)
		if err != nil {
			return fmt.Errorf("ошибка получения событий: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ev   RewardEvent
				kind string
				raw  string
			)
			if err := rows.Scan(&ev.ID, &ev.AccountID, &kind, &ev.Asset, &raw,
				&ev.SourceTaskID, &ev.Timestamp); err != nil {
				return fmt.Errorf("ошибка сканирования события: %w", err)
			}
			ev.Kind = EventKind(kind)
			if ev.Amount, err = decimal.NewFromString(raw); err != nil {
				return fmt.Errorf("событие %s: %w", ev.ID, err)
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// LedgerTotals читает балансы и суммы событий в одном снимке.
func (r *Repository) LedgerTotals(ctx context.Context, id string) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal)
	sums := make(map[string]decimal.Decimal)
	err := postgres.InTx(ctx, r.db, postgres.ReadOnlySnapshot, func(tx pgx.Tx) error {
		if err := scanTotals(ctx, tx, balances,
			`SELECT asset, balance::text FROM balances WHERE account_id = $1`, id); err != nil {
			return err
		}
		return scanTotals(ctx, tx, sums,
			`SELECT asset, SUM(amount)::text FROM reward_events WHERE account_id = $1 GROUP BY asset`, id)
	})
	if err != nil {
		return nil, nil, err
	}
	return balances, sums, nil
}

func scanTotals(ctx context.Context, tx pgx.Tx, into map[string]decimal.Decimal, query, id string) error {
	rows, err := tx.Query(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка чтения сумм: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var asset, raw string
		if err := rows.Scan(&asset, &raw); err != nil {
			return fmt.Errorf("ошибка сканирования суммы: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("сумма %s: %w", asset, err)
		}
		into[asset] = v
	}
	return rows.Err()
}

// PendingReviews возвращает заявки на проверке, старые сверху.
func (r *Repository) PendingReviews(ctx context.Context, taskIDs []string, before time.Time, limit int) ([]PendingReview, error) {
	// LIMIT NULL: без ограничения
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT account_id, task_id, payload, platform, submitted_at
		FROM task_statuses
		WHERE state = $1 AND submitted_at < $2 AND task_id = ANY($3)
		ORDER BY submitted_at ASC, account_id ASC
		LIMIT $4
	`, string(TaskPendingReview), before, taskIDs, lim)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок на проверке: %w", err)
	}
	defer rows.Close()

	var out []PendingReview
	for rows.Next() {
		var p PendingReview
		if err := rows.Scan(&p.AccountID, &p.TaskID, &p.Payload, &p.Platform, &p.SubmittedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TaskParticipants: число занятых мест в кампании.
func (r *Repository) TaskParticipants(ctx context.Context, taskID string) (int, error) {
	var used int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT used FROM task_quotas WHERE task_id = $1), 0)`, taskID,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения квоты %s: %w", taskID, err)
	}
	return used, nil
}
