// Package accounts хранит агрегат аккаунта: балансы, журнал событий, стрик,
// статусы заданий, реферальные данные и привязку кошелька.
// models.go описывает сам агрегат и его вложенные записи.
package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// StreakDays: длина недельного цикла стрика.
const StreakDays = 7

// EventKind: тип события журнала наград.
type EventKind string

const (
	KindDailyStreak     EventKind = "daily-streak"     // Ежедневная награда
	KindTaskCompletion  EventKind = "task-completion"  // Выполнение задания
	KindReferralBonus   EventKind = "referral-bonus"   // Реферальный бонус
	KindWithdrawalDebit EventKind = "withdrawal-debit" // Вывод средств
)

// Valid: тип события из известного набора.
func (k EventKind) Valid() bool {
	switch k {
	case KindDailyStreak, KindTaskCompletion, KindReferralBonus, KindWithdrawalDebit:
		return true
	}
	return false
}

// RewardEvent: неизменяемая запись о начислении или списании.
// Amount со знаком: > 0: начисление, < 0: списание.
type RewardEvent struct {
	ID           string          `json:"eventId"`
	AccountID    string          `json:"accountId"`
	Kind         EventKind       `json:"kind"`
	Asset        string          `json:"asset"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
	SourceTaskID string          `json:"sourceTaskId,omitempty"`
}

// StreakState: прогресс недельного стрика.
// CurrentDayIndex: следующий день для получения (0–6).
type StreakState struct {
	CurrentDayIndex int              `json:"currentDayIndex"`
	DayCompleted    [StreakDays]bool `json:"dayCompleted"`
	LastClaimedAt   *time.Time       `json:"lastClaimedAt,omitempty"`
}

// Terminal: все 7 дней получены.
func (s StreakState) Terminal() bool {
	return s.DayCompleted[StreakDays-1]
}

// TaskState: статус задания для аккаунта.
type TaskState string

const (
	TaskIdle          TaskState = "Idle"
	TaskPendingReview TaskState = "PendingReview"
	TaskCompleted     TaskState = "Completed"
)

// TaskStatus: состояние одного задания одного аккаунта.
type TaskStatus struct {
	TaskID      string     `json:"taskId"`
	State       TaskState  `json:"state"`
	Payload     string     `json:"submittedPayload,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// WalletBinding: привязанный кошелёк биржи.
type WalletBinding struct {
	ExchangeUID string    `json:"exchangeUid"`
	BoundAt     time.Time `json:"boundAt"`
}

// Account: агрегат одного пользователя.
// Все изменения проходят через Store.Update, который сериализует
// запись по аккаунту и сохраняет изменения атомарно.
type Account struct {
	ID            string                     `json:"accountId"`
	ReferralCode  string                     `json:"referralCode,omitempty"`
	ReferredBy    string                     `json:"referredBy,omitempty"` // реферальный код пригласившего
	ReferralCount int                        `json:"referralCount"`
	Balances      map[string]decimal.Decimal `json:"balances"`
	Streak        StreakState                `json:"streak"`
	Tasks         map[string]TaskStatus      `json:"tasks"`
	Wallet        *WalletBinding             `json:"wallet,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`

	// несохранённые изменения текущей единицы работы
	pending []RewardEvent
	claims  []ParticipantClaim
}

// ParticipantClaim: заявка на место в кампании с ограничением участников.
type ParticipantClaim struct {
	TaskID string
	Limit  int
}

// PendingReview: заявка, ожидающая решения ревьюера.
type PendingReview struct {
	AccountID   string    `json:"accountId"`
	TaskID      string    `json:"taskId"`
	Payload     string    `json:"payload"`
	Platform    string    `json:"platform,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// New создаёт пустой аккаунт.
func New(id string, now time.Time) *Account {
	return &Account{
		ID:        id,
		Balances:  make(map[string]decimal.Decimal),
		Tasks:     make(map[string]TaskStatus),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Balance: текущий баланс актива (ноль, если записи нет).
func (a *Account) Balance(asset string) decimal.Decimal {
	return a.Balances[asset]
}

// Task: статус задания; без записи задание в статусе Idle.
func (a *Account) Task(taskID string) TaskStatus {
	if st, ok := a.Tasks[taskID]; ok {
		return st
	}
	return TaskStatus{TaskID: taskID, State: TaskIdle}
}

// Append добавляет событие в текущую единицу работы.
// Баланс меняет вызывающий (ledger): здесь только журнал.
func (a *Account) Append(ev RewardEvent) {
	a.pending = append(a.pending, ev)
}

// Pending: события, добавленные в текущей единице работы.
func (a *Account) Pending() []RewardEvent {
	out := make([]RewardEvent, len(a.pending))
	copy(out, a.pending)
	return out
}

// ClaimParticipant резервирует место в кампании при коммите.
// Если мест нет, Store вернёт ErrTaskFull и откатит всю единицу работы.
func (a *Account) ClaimParticipant(taskID string, limit int) {
	a.claims = append(a.claims, ParticipantClaim{TaskID: taskID, Limit: limit})
}

// Clone: глубокая копия без несохранённых изменений.
func (a *Account) Clone() *Account {
	c := *a
	c.Balances = make(map[string]decimal.Decimal, len(a.Balances))
	for k, v := range a.Balances {
		c.Balances[k] = v
	}
	c.Tasks = make(map[string]TaskStatus, len(a.Tasks))
	for k, v := range a.Tasks {
		c.Tasks[k] = cloneTask(v)
	}
	if a.Streak.LastClaimedAt != nil {
		t := *a.Streak.LastClaimedAt
		c.Streak.LastClaimedAt = &t
	}
	if a.Wallet != nil {
		w := *a.Wallet
		c.Wallet = &w
	}
	c.pending = nil
	c.claims = nil
	return &c
}

func cloneTask(st TaskStatus) TaskStatus {
	if st.SubmittedAt != nil {
		t := *st.SubmittedAt
		st.SubmittedAt = &t
	}
	if st.CompletedAt != nil {
		t := *st.CompletedAt
		st.CompletedAt = &t
	}
	return st
}
