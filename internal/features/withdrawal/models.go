// Package withdrawal проверяет и исполняет заявки на вывод токенов.
// models.go описывает заявку, оценку суммы и поручение платёжному исполнителю.
package withdrawal

import (
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/features/accounts"
)

// Валюты оценки суммы вывода.
const (
	TargetTWD   = "TWD"
	TargetOther = "Other"
)

// Request: заявка на вывод.
type Request struct {
	AccountID string          `json:"accountId"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	// пусто: используем привязанный кошелёк биржи
	Destination string `json:"destination,omitempty"`
	Target      string `json:"target,omitempty"`
}

// Estimate: примерная стоимость вывода в фиатной валюте.
type Estimate struct {
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
	Display  string          `json:"display"` // "≈ 313 TWD"
}

// Instruction: поручение исполнителю перевода.
// Событие списания служит подтверждением авторизации.
type Instruction struct {
	Event       accounts.RewardEvent `json:"event"`
	Destination string               `json:"destination"`
	Estimate    *Estimate            `json:"estimate,omitempty"`
}
