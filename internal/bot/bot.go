// Package bot: Telegram-бот ревьюеров: очередь заданий на проверке,
// одобрение и возврат на доработку, ежедневная сводка.
// Бот работает только в личке и только с пользователями из REVIEWER_IDS.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/bot/filters"
	"bitbee.app/rewards-core/internal/bot/middleware"
	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
)

// pendingPageSize: сколько заявок показывает /pending.
const pendingPageSize = 10

// API: методы Telegram Bot API, которые использует бот (*telego.Bot).
type API interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

// Reviews: операции очереди проверки (*tasks.Service).
type Reviews interface {
	PendingReviews(ctx context.Context, limit int) ([]accounts.PendingReview, error)
	Approve(ctx context.Context, accountID, taskID string) (accounts.TaskStatus, error)
	Resubmit(ctx context.Context, accountID, taskID string) (accounts.TaskStatus, error)
	Reviewable(taskID string) bool
}

// Bot: бот ревьюеров.
type Bot struct {
	api     API
	reviews Reviews
	filter  *filters.ReviewerFilter
	auth    *Auth
	parser  *CommandParser

	reviewerIDs []int64

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота.
func New(api API, reviews Reviews, cfg *config.Config) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	return &Bot{
		api:         api,
		reviews:     reviews,
		filter:      filters.NewReviewerFilter(cfg.ReviewerIDs),
		auth:        NewAuth(cfg.ReviewerPasswordHash),
		parser:      NewCommandParser(),
		reviewerIDs: cfg.ReviewerIDs,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start обрабатывает апдейты до отмены ctx или закрытия канала.
// Возвращается после завершения всех обработчиков.
func (b *Bot) Start(ctx context.Context, updates <-chan telego.Update) {
	log.WithField("max_inflight", cap(b.inflight)).Info("Бот ревьюеров запущен")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			b.wg.Add(1)
			go func(upd telego.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}
	middleware.LogMessage(message, b.parser.Redact)

	if !b.filter.CheckAccess(message) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	b.routeCommand(ctx, message.Chat.ID, message.From.ID, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":     cmd,
		"user_id": userID,
	}).Debug("routing command")

	switch cmd {
	case "start", "help":
		b.sendMessage(ctx, chatID, helpText)
		return
	case "login":
		b.handleLogin(ctx, chatID, userID, strings.Join(args, " "))
		return
	}

	if !b.auth.HasSession(userID) {
		b.sendMessage(ctx, chatID, "🔒 Сначала войдите: /login <пароль>")
		return
	}

	switch cmd {
	case "logout":
		b.auth.Logout(userID)
		b.sendMessage(ctx, chatID, "👋 Сессия завершена")
	case "pending":
		b.handlePending(ctx, chatID)
	case "approve", "reject":
		if len(args) != 2 {
			b.sendMessage(ctx, chatID, fmt.Sprintf("Использование: /%s <account_id> <task_id>", cmd))
			return
		}
		b.sendMessage(ctx, chatID, b.decide(ctx, userID, cmd == "approve", args[0], args[1]))
	default:
		b.sendMessage(ctx, chatID, "Неизвестная команда. /help — список команд")
	}
}

const helpText = `Бот проверки заданий BitBee.
/login <пароль> — вход (сессия на 24 часа)
/pending — заявки на проверке
/approve <account_id> <task_id> — одобрить
/reject <account_id> <task_id> — вернуть на доработку
/logout — выйти`

func (b *Bot) handleLogin(ctx context.Context, chatID, userID int64, password string) {
	if password == "" {
		b.sendMessage(ctx, chatID, "Использование: /login <пароль>")
		return
	}
	if err := b.auth.Login(userID, password); err != nil {
		b.sendMessage(ctx, chatID, "❌ "+err.Error())
		return
	}
	b.sendMessage(ctx, chatID, "✅ Вход выполнен. /pending — заявки на проверке")
}

func (b *Bot) handlePending(ctx context.Context, chatID int64) {
	list, err := b.reviews.PendingReviews(ctx, pendingPageSize)
	if err != nil {
		log.WithError(err).Error("Не удалось получить очередь проверки")
		b.sendMessage(ctx, chatID, "⚠️ Не удалось получить очередь, попробуйте позже")
		return
	}
	if len(list) == 0 {
		b.sendMessage(ctx, chatID, "✨ Очередь проверки пуста")
		return
	}

	for _, r := range list {
		params := &telego.SendMessageParams{
			ChatID:      telego.ChatID{ID: chatID},
			Text:        formatReview(r),
			ReplyMarkup: reviewKeyboard(r),
		}
		if _, err := b.api.SendMessage(ctx, params); err != nil {
			log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки заявки")
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	middleware.LogCallback(q)

	answer := func(text string) {
		err := b.api.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
			CallbackQueryID: q.ID,
			Text:            text,
		})
		if err != nil {
			log.WithError(err).Debug("Не удалось ответить на callback")
		}
	}

	if !b.filter.IsReviewer(q.From.ID) {
		answer("Нет доступа")
		return
	}
	if !b.auth.HasSession(q.From.ID) {
		answer("Сначала /login")
		return
	}

	approve, taskID, accountID, ok := parseCallbackData(q.Data)
	if !ok {
		answer("Неизвестное действие")
		return
	}
	result := b.decide(ctx, q.From.ID, approve, accountID, taskID)
	answer("Готово")
	b.sendMessage(ctx, q.From.ID, result)
}

// decide одобряет заявку или возвращает её на доработку, возвращает текст ответа.
func (b *Bot) decide(ctx context.Context, reviewerID int64, approve bool, accountID, taskID string) string {
	// верификация и Discord подтверждаются только внешним сервисом
	if !b.reviews.Reviewable(taskID) {
		log.WithFields(log.Fields{
			"reviewer_id": reviewerID,
			"account_id":  accountID,
			"task_id":     taskID,
		}).Info("Задание не проверяется ревьюером")
		return fmt.Sprintf("❌ %s: задание не проверяется ревьюером", taskID)
	}

	var (
		st  accounts.TaskStatus
		err error
	)
	if approve {
		st, err = b.reviews.Approve(ctx, accountID, taskID)
	} else {
		st, err = b.reviews.Resubmit(ctx, accountID, taskID)
	}

	logger := log.WithFields(log.Fields{
		"reviewer_id": reviewerID,
		"account_id":  accountID,
		"task_id":     taskID,
		"approve":     approve,
	})
	if err != nil {
		if common.IsRejection(err) {
			logger.WithError(err).Info("Решение ревьюера отклонено")
			return "❌ " + err.Error()
		}
		logger.WithError(err).Error("Ошибка решения ревьюера")
		return "⚠️ Внутренняя ошибка, попробуйте позже"
	}

	logger.WithField("state", st.State).Info("Решение ревьюера принято")
	if approve {
		return fmt.Sprintf("✅ %s / %s: одобрено, награда начислена", accountID, taskID)
	}
	return fmt.Sprintf("↩️ %s / %s: возвращено на доработку", accountID, taskID)
}

// Notify отправляет сообщение всем ревьюерам.
func (b *Bot) Notify(ctx context.Context, text string) {
	for _, id := range b.reviewerIDs {
		b.sendMessage(ctx, id, text)
	}
}

// sendMessage: утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	}
	if _, err := b.api.SendMessage(ctx, params); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
