// Package streak: rewards.go содержит таблицу наград за дни стрика.
package streak

import (
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/features/accounts"
)

// dailyAmounts: награда по индексу дня.
//
// Таблица наград:
//
//	День 1–2: 1
//	День 3–4: 2
//	День 5–6: 3
//	День 7:   10 (бонус)
var dailyAmounts = [accounts.StreakDays]int64{1, 1, 2, 2, 3, 3, 10}

// bonusDay: индекс бонусного дня.
const bonusDay = accounts.StreakDays - 1

// RewardFor возвращает награду за день day (0–6) в активе asset.
func RewardFor(day int, asset string) Reward {
	if day < 0 {
		day = 0
	}
	if day > bonusDay {
		day = bonusDay
	}
	return Reward{
		Day:    day,
		Asset:  asset,
		Amount: decimal.NewFromInt(dailyAmounts[day]),
		Bonus:  day == bonusDay,
	}
}

// Table: все 7 наград недели.
func Table(asset string) []Reward {
	out := make([]Reward, 0, accounts.StreakDays)
	for d := 0; d < accounts.StreakDays; d++ {
		out = append(out, RewardFor(d, asset))
	}
	return out
}
