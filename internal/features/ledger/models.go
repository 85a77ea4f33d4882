// Package ledger управляет балансами токенов и журналом событий наград.
// models.go описывает страницы истории наград.
package ledger

import "bitbee.app/rewards-core/internal/features/accounts"

// PageSize: событий на одной странице истории.
const PageSize = 10

// HistoryItem: строка истории наград для отображения.
type HistoryItem struct {
	accounts.RewardEvent
	Title   string `json:"title"`   // «Ежедневная награда», «Задание», ...
	Display string `json:"display"` // "+0.0(5)109 WBTC"
	Date    string `json:"date"`    // "02.01.2006 15:04"
}

// HistoryPage: страница истории, новые события сверху.
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// kindTitles: подписи типов событий.
var kindTitles = map[accounts.EventKind]string{
	accounts.KindDailyStreak:     "Ежедневная награда",
	accounts.KindTaskCompletion:  "Задание",
	accounts.KindReferralBonus:   "Реферальный бонус",
	accounts.KindWithdrawalDebit: "Вывод средств",
}

// Title возвращает подпись типа события.
func Title(kind accounts.EventKind) string {
	if t, ok := kindTitles[kind]; ok {
		return t
	}
	return string(kind)
}
