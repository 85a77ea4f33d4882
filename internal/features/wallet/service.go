// Package wallet привязывает кошелёк биржи к аккаунту через одноразовый код.
// Коды живут в памяти процесса: хранится только хеш Argon2id, срок и попытки.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
)

const (
	minUIDLength = 6
	codeLength   = 6
)

// Sender доставляет код подтверждения владельцу UID биржи.
type Sender interface {
	SendOTP(ctx context.Context, exchangeUID, code string) error
}

// LogSender пишет код в лог (локальная разработка).
type LogSender struct{}

// SendOTP логирует код на уровне Debug.
func (LogSender) SendOTP(_ context.Context, exchangeUID, code string) error {
	log.WithFields(log.Fields{"exchange_uid": exchangeUID, "code": code}).Debug("Код подтверждения кошелька")
	return nil
}

// Challenge: выданный код подтверждения (без самого кода).
type Challenge struct {
	ExchangeUID string    `json:"exchangeUid"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ResendAt    time.Time `json:"resendAt"`
}

// pendingOTP: запрос привязки, ожидающий подтверждения.
type pendingOTP struct {
	uid       string
	hash      string
	sentAt    time.Time
	expiresAt time.Time
	attempts  int
}

// Service управляет привязкой кошелька.
type Service struct {
	store       accounts.Store
	sender      Sender
	ttl         time.Duration
	resend      time.Duration
	maxAttempts int
	now         func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingOTP // id аккаунта → запрос
}

// NewService создаёт сервис привязки. sender == nil: коды только логируются.
func NewService(store accounts.Store, sender Sender, cfg *config.Config) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{
		store:       store,
		sender:      sender,
		ttl:         cfg.OTPTTL,
		resend:      cfg.OTPResendInterval,
		maxAttempts: cfg.OTPMaxAttempts,
		now:         common.Now,
		pending:     make(map[string]*pendingOTP),
	}
}

// RequestOTP выдаёт 6-значный код для привязки UID биржи.
// Повторная отправка возможна не раньше OTP_RESEND_INTERVAL.
func (s *Service) RequestOTP(ctx context.Context, accountID, exchangeUID string) (*Challenge, error) {
	uid := strings.TrimSpace(exchangeUID)
	if len([]rune(uid)) < minUIDLength {
		return nil, common.Reject(common.ErrInvalidExchangeUID, "min_length", fmt.Sprint(minUIDLength))
	}

	code, err := common.RandomDigits(codeLength)
	if err != nil {
		return nil, err
	}
	hash, err := common.HashSecret(code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.mu.Lock()
	if p, ok := s.pending[accountID]; ok {
		if retry := p.sentAt.Add(s.resend); now.Before(retry) {
			s.mu.Unlock()
			return nil, common.Reject(common.ErrOTPCooldown,
				"retry_after", fmt.Sprint(int(retry.Sub(now).Round(time.Second).Seconds())))
		}
	}
	p := &pendingOTP{uid: uid, hash: hash, sentAt: now, expiresAt: now.Add(s.ttl)}
	s.pending[accountID] = p
	s.mu.Unlock()

	if err := s.sender.SendOTP(ctx, uid, code); err != nil {
		s.mu.Lock()
		if s.pending[accountID] == p {
			delete(s.pending, accountID)
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("ошибка отправки кода: %w", err)
	}

	log.WithFields(log.Fields{"account_id": accountID, "exchange_uid": uid}).Info("Код привязки кошелька отправлен")
	return &Challenge{ExchangeUID: uid, ExpiresAt: p.expiresAt, ResendAt: now.Add(s.resend)}, nil
}

// VerifyOTP проверяет код и сохраняет привязку кошелька.
func (s *Service) VerifyOTP(ctx context.Context, accountID, code string) (*accounts.WalletBinding, error) {
	code = strings.TrimSpace(code)
	if !validCode(code) {
		return nil, common.ErrOTPInvalid
	}

	now := s.now()
	s.mu.Lock()
	p, ok := s.pending[accountID]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, common.ErrOTPNotRequested
	case now.After(p.expiresAt) || p.attempts >= s.maxAttempts:
		delete(s.pending, accountID)
		s.mu.Unlock()
		return nil, common.ErrOTPExpired
	}
	if !common.VerifySecret(code, p.hash) {
		p.attempts++
		left := s.maxAttempts - p.attempts
		if left <= 0 {
			delete(s.pending, accountID)
		}
		s.mu.Unlock()
		return nil, common.Reject(common.ErrOTPInvalid, "attempts_left", fmt.Sprint(left))
	}
	uid := p.uid
	s.mu.Unlock()

	binding := accounts.WalletBinding{ExchangeUID: uid, BoundAt: now}
	if err := s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		acc.Wallet = &binding
		return nil
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.pending[accountID] == p {
		delete(s.pending, accountID)
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{"account_id": accountID, "exchange_uid": uid}).Info("Кошелёк привязан")
	return &binding, nil
}

// Binding возвращает привязанный кошелёк или ErrWalletNotBound.
func (s *Service) Binding(ctx context.Context, accountID string) (*accounts.WalletBinding, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Wallet == nil {
		return nil, common.ErrWalletNotBound
	}
	return acc.Wallet, nil
}

// PurgeExpired удаляет истёкшие запросы. Возвращает число удалённых.
func (s *Service) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, id)
			n++
		}
	}
	return n
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
