// Package tasks ведёт каталог заданий и статусы их выполнения.
// models.go описывает определения заданий и представления для экрана.
package tasks

import (
	"github.com/shopspring/decimal"

	"bitbee.app/rewards-core/internal/features/accounts"
)

// Mode: способ подтверждения задания.
type Mode string

const (
	// ModeInstantCallback: подтверждает внешний сервис (верификация, Discord)
	ModeInstantCallback Mode = "instant-callback"
	// ModeURLReview: пользователь присылает ссылку, её проверяет ревьюер
	ModeURLReview Mode = "url-submission-with-review"
	// ModeEmailCapture: достаточно оставить email
	ModeEmailCapture Mode = "email-capture"
)

// Definition: задание из каталога.
type Definition struct {
	ID           string          `json:"taskId"`
	Title        string          `json:"title"`
	Asset        string          `json:"rewardAsset"`
	Amount       decimal.Decimal `json:"rewardAmount"`
	Mode         Mode            `json:"mode"`
	Prerequisite string          `json:"prerequisiteTaskId,omitempty"`
	Platforms    []string        `json:"platforms,omitempty"`
	// 0: без ограничения
	ParticipantLimit int `json:"participantLimit,omitempty"`
}

// AllowsPlatform: платформа разрешена для задания.
func (d Definition) AllowsPlatform(p string) bool {
	for _, allowed := range d.Platforms {
		if allowed == p {
			return true
		}
	}
	return false
}

// Submission: данные, которые присылает пользователь или внешний сервис.
type Submission struct {
	Payload  string `json:"payload"`
	Platform string `json:"platform,omitempty"`
}

// ReviewWindow: ожидаемый срок проверки заявки (рабочие дни).
type ReviewWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// View: задание вместе со статусом для конкретного аккаунта.
type View struct {
	Definition
	Status       accounts.TaskStatus `json:"status"`
	Reward       string              `json:"reward"` // "+0.0(5)109 WBTC"
	Locked       bool                `json:"locked"` // не выполнено обязательное задание
	Participants int                 `json:"participants,omitempty"`
	Review       *ReviewWindow       `json:"review,omitempty"`
}
