package bot

import (
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/features/accounts"
)

// CommandParser разбирает команды вида /cmd@botname arg1 arg2.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	// в группах Telegram дописывает имя бота: /pending@bitbee_review_bot
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}

// secretCommands: аргументы этих команд не попадают в лог.
var secretCommands = map[string]bool{"login": true}

// Redact скрывает аргументы секретных команд с любым префиксом и @botname.
func (p *CommandParser) Redact(text string) string {
	cmd, args, ok := p.ParseCommand(text)
	if !ok || !secretCommands[cmd] {
		return text
	}
	if len(args) == 0 {
		return "/" + cmd
	}
	return "/" + cmd + " ***"
}

// Данные inline-кнопок: "a:<task_id>:<account_id>" или "r:<task_id>:<account_id>".
// ID аккаунта последним: он может содержать двоеточие.
const (
	callbackApprove = "a"
	callbackReject  = "r"
)

func callbackData(action, taskID, accountID string) string {
	return action + ":" + taskID + ":" + accountID
}

func parseCallbackData(data string) (approve bool, taskID, accountID string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return false, "", "", false
	}
	switch parts[0] {
	case callbackApprove:
		return true, parts[1], parts[2], true
	case callbackReject:
		return false, parts[1], parts[2], true
	}
	return false, "", "", false
}

func formatReview(r accounts.PendingReview) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 %s\n", r.TaskID)
	fmt.Fprintf(&sb, "Аккаунт: %s\n", r.AccountID)
	if r.Platform != "" {
		fmt.Fprintf(&sb, "Платформа: %s\n", r.Platform)
	}
	fmt.Fprintf(&sb, "Ссылка: %s\n", r.Payload)
	fmt.Fprintf(&sb, "Отправлено: %s", common.FormatDateTime(r.SubmittedAt))
	return sb.String()
}

func reviewKeyboard(r accounts.PendingReview) *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{{
			{Text: "✅ Одобрить", CallbackData: callbackData(callbackApprove, r.TaskID, r.AccountID)},
			{Text: "↩️ На доработку", CallbackData: callbackData(callbackReject, r.TaskID, r.AccountID)},
		}},
	}
}
