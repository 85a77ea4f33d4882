// Package middleware содержит промежуточные обработчики бота ревьюеров:
// логирование апдейтов и восстановление после паники.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, username, текст (первые 50 символов).
// redact скрывает секреты в тексте до записи, nil: текст как есть.
func LogMessage(message *telego.Message, redact func(string) string) {
	if message == nil || message.From == nil {
		return
	}

	text := message.Text
	if redact != nil {
		text = redact(text)
	}
	if len([]rune(text)) > 50 {
		text = string([]rune(text)[:50]) + "..."
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.Username,
		"text":     text,
	}).Debug("Входящее сообщение")
}

// LogCallback логирует нажатие inline-кнопки.
func LogCallback(q *telego.CallbackQuery) {
	if q == nil {
		return
	}
	log.WithFields(log.Fields{
		"user_id":  q.From.ID,
		"username": q.From.Username,
		"data":     q.Data,
	}).Debug("Нажата кнопка")
}
