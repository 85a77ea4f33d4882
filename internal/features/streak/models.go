// Package streak управляет недельным стриком ежедневных наград.
// models.go описывает результат получения награды и состояние для экрана.
package streak

import (
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/features/accounts"
)

// Reward: награда за один день стрика.
type Reward struct {
	Day    int             `json:"day"` // 0–6
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Bonus  bool            `json:"bonus"` // 7-й день
}

// ClaimResult: результат ClaimDaily.
type ClaimResult struct {
	Reward Reward               `json:"reward"`
	Event  accounts.RewardEvent `json:"event"`
	State  accounts.StreakState `json:"state"`
}

// View: состояние стрика для экрана наград.
type View struct {
	State         accounts.StreakState `json:"state"`
	Rewards       []Reward             `json:"rewards"`
	CanClaim      bool                 `json:"canClaim"`
	NextReward    *Reward              `json:"nextReward,omitempty"`
	NextClaimDate string               `json:"nextClaimDate,omitempty"` // 2006-01-02
}
