// Package common: errors.go определяет ошибки, которые используются во всех
// модулях ядра наград. Отказы валидации: это sentinel-ошибки: по ним API
// выбирает HTTP-статус и машинный код, а клиент показывает понятное сообщение.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Ошибки леджера (балансы, события)
var (
	// ErrInvalidAmount: сумма не положительная или не число
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInsufficientBalance: на балансе меньше, чем требуется списать
	ErrInsufficientBalance = errors.New("недостаточно средств на балансе")
	// ErrUnsupportedAsset: неизвестный или пустой символ актива
	ErrUnsupportedAsset = errors.New("актив не поддерживается")
	// ErrLedgerMismatch: баланс разошёлся с суммой событий журнала
	ErrLedgerMismatch = errors.New("баланс не совпадает с журналом событий")
)

// Ошибки стрика
var (
	// ErrAlreadyClaimedToday: награда за сегодня уже получена
	ErrAlreadyClaimedToday = errors.New("награда за сегодня уже получена")
	// ErrStreakComplete: все 7 дней пройдены, нужен сброс
	ErrStreakComplete = errors.New("недельная серия завершена")
	// ErrClaimBeforeLast: дата запроса раньше последней полученной награды (часы разошлись)
	ErrClaimBeforeLast = errors.New("дата запроса раньше последней награды")
)

// Ошибки заданий
var (
	// ErrTaskNotFound: задания нет в каталоге
	ErrTaskNotFound = errors.New("задание не найдено")
	// ErrPrerequisiteNotMet: сначала нужно выполнить предыдущее задание
	ErrPrerequisiteNotMet = errors.New("сначала выполните обязательное задание")
	// ErrInvalidTransition: переход недопустим из текущего статуса
	ErrInvalidTransition = errors.New("действие недоступно в текущем статусе задания")
	// ErrEmptyPayload: пустая ссылка или email
	ErrEmptyPayload = errors.New("укажите ссылку или email")
	// ErrInvalidPayload: ссылка или email в неверном формате
	ErrInvalidPayload = errors.New("неверный формат ссылки или email")
	// ErrInvalidPlatform: платформа не разрешена для задания
	ErrInvalidPlatform = errors.New("платформа не поддерживается для этого задания")
	// ErrTaskFull: лимит участников кампании исчерпан
	ErrTaskFull = errors.New("набор участников завершён")
)

// Ошибки рефералов
var (
	// ErrUnknownCode: реферальный код не найден
	ErrUnknownCode = errors.New("реферальный код не найден")
	// ErrSelfReferral: попытка применить собственный код
	ErrSelfReferral = errors.New("нельзя использовать свой реферальный код")
	// ErrAlreadyReferred: код пригласившего уже применён
	ErrAlreadyReferred = errors.New("реферальный код уже применён")
)

// Ошибки вывода и привязки кошелька
var (
	// ErrBelowMinimum: сумма меньше минимальной для вывода
	ErrBelowMinimum = errors.New("сумма меньше минимальной для вывода")
	// ErrWalletNotBound: кошелёк биржи не привязан
	ErrWalletNotBound = errors.New("сначала привяжите кошелёк")
	// ErrInvalidExchangeUID: UID биржи короче 6 символов
	ErrInvalidExchangeUID = errors.New("UID биржи должен содержать не меньше 6 символов")
	// ErrOTPCooldown: код уже отправлен, повтор позже
	ErrOTPCooldown = errors.New("код уже отправлен, повторите позже")
	// ErrOTPNotRequested: код не запрашивался
	ErrOTPNotRequested = errors.New("сначала запросите код подтверждения")
	// ErrOTPInvalid: неверный код
	ErrOTPInvalid = errors.New("неверный код подтверждения")
	// ErrOTPExpired: код истёк или исчерпаны попытки
	ErrOTPExpired = errors.New("код подтверждения истёк, запросите новый")
)

// Ошибки доступа
var (
	// ErrUnauthorized: нет или неверный токен сервиса / сессия ревьюера
	ErrUnauthorized = errors.New("нет доступа")
	// ErrWrongPassword: неверный пароль ревьюера
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)

// codes: машинные коды для клиента. Порядок проверки не важен:
// каждая ошибка отображается ровно в один код.
var codes = map[error]string{
	ErrInvalidAmount:       "INVALID_AMOUNT",
	ErrInsufficientBalance: "INSUFFICIENT_BALANCE",
	ErrUnsupportedAsset:    "UNSUPPORTED_ASSET",
	ErrLedgerMismatch:      "LEDGER_MISMATCH",
	ErrAlreadyClaimedToday: "ALREADY_CLAIMED_TODAY",
	ErrStreakComplete:      "STREAK_COMPLETE",
	ErrClaimBeforeLast:     "CLAIM_BEFORE_LAST",
	ErrTaskNotFound:        "TASK_NOT_FOUND",
	ErrPrerequisiteNotMet:  "PREREQUISITE_NOT_MET",
	ErrInvalidTransition:   "INVALID_TRANSITION",
	ErrEmptyPayload:        "EMPTY_PAYLOAD",
	ErrInvalidPayload:      "INVALID_PAYLOAD",
	ErrInvalidPlatform:     "INVALID_PLATFORM",
	ErrTaskFull:            "TASK_FULL",
	ErrUnknownCode:         "UNKNOWN_CODE",
	ErrSelfReferral:        "SELF_REFERRAL",
	ErrAlreadyReferred:     "ALREADY_REFERRED",
	ErrBelowMinimum:        "BELOW_MINIMUM",
	ErrWalletNotBound:      "WALLET_NOT_BOUND",
	ErrInvalidExchangeUID:  "INVALID_EXCHANGE_UID",
	ErrOTPCooldown:         "OTP_COOLDOWN",
	ErrOTPNotRequested:     "OTP_NOT_REQUESTED",
	ErrOTPInvalid:          "OTP_INVALID",
	ErrOTPExpired:          "OTP_EXPIRED",
	ErrUnauthorized:        "UNAUTHORIZED",
	ErrWrongPassword:       "WRONG_PASSWORD",
	ErrTooManyAttempts:     "TOO_MANY_ATTEMPTS",
}

// Code возвращает машинный код ошибки или "INTERNAL" для инфраструктурных сбоев.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}

// IsRejection сообщает, что ошибка: ожидаемый отказ (валидация или нехватка
// средств), а не сбой. ErrLedgerMismatch сюда не входит: это авария.
func IsRejection(err error) bool {
	if err == nil || errors.Is(err, ErrLedgerMismatch) {
		return false
	}
	code := Code(err)
	return code != "INTERNAL"
}

// Rejection: отказ с деталями для клиента (минимум, доступный баланс и т.п.).
// errors.Is(rej, ErrBelowMinimum) работает через Unwrap.
type Rejection struct {
	Err     error
	Details map[string]string
}

// Reject оборачивает sentinel-ошибку парами ключ/значение.
//
// Пример:
//
//	return common.Reject(common.ErrBelowMinimum, "minimum", "10", "asset", "USDT")
func Reject(err error, kv ...string) *Rejection {
	r := &Rejection{Err: err, Details: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Details[kv[i]] = kv[i+1]
	}
	return r
}

func (r *Rejection) Error() string {
	if len(r.Details) == 0 {
		return r.Err.Error()
	}
	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, r.Details[k]))
	}
	return fmt.Sprintf("%s (%s)", r.Err.Error(), strings.Join(parts, ", "))
}

func (r *Rejection) Unwrap() error { return r.Err }

// DetailsOf достаёт детали отказа, если они есть.
func DetailsOf(err error) map[string]string {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Details
	}
	return nil
}
