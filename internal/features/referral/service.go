// Package referral выдаёт реферальные коды и начисляет бонусы за приглашения.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
)

const (
	codeLength   = 6
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// попыток сгенерировать незанятый код
	codeAttempts = 5
)

// Summary: реферальные данные аккаунта для экрана приглашений.
type Summary struct {
	Code       string `json:"referralCode"`
	Link       string `json:"referralLink"`
	Count      int    `json:"referralCount"`
	ReferredBy string `json:"referredBy,omitempty"`
}

// ApplyResult: результат применения кода.
type ApplyResult struct {
	ReferrerID string          `json:"referrerAccountId"`
	Asset      string          `json:"asset"`
	Bonus      decimal.Decimal `json:"bonus"`
}

// Service управляет рефералами.
type Service struct {
	store    accounts.Store
	asset    string
	bonus    decimal.Decimal
	linkBase string
	newCode  func() (string, error)
	now      func() time.Time
}

// NewService создаёт сервис рефералов.
func NewService(store accounts.Store, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		asset:    common.NormalizeAsset(cfg.ReferralBonusAsset),
		bonus:    cfg.ReferralBonus(),
		linkBase: cfg.ReferralLinkBase,
		newCode: func() (string, error) {
			return common.RandomString(codeLength, codeAlphabet)
		},
		now: common.Now,
	}
}

// GenerateCode возвращает реферальный код аккаунта, создавая его при
// первом вызове. Повторные вызовы возвращают тот же код.
func (s *Service) GenerateCode(ctx context.Context, accountID string) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		candidate, err := s.newCode()
		if err != nil {
			return "", err
		}

		var code string
		err = s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
			if acc.ReferralCode == "" {
				acc.ReferralCode = candidate
			}
			code = acc.ReferralCode
			return nil
		})
		if errors.Is(err, accounts.ErrCodeTaken) {
			log.WithField("account_id", accountID).Debug("Реферальный код занят, генерируем новый")
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("не удалось сгенерировать уникальный код за %d попыток", codeAttempts)
}

// Link возвращает ссылку для приглашения.
func (s *Service) Link(code string) string {
	return s.linkBase + code
}

// ApplyReferral привязывает новый аккаунт к пригласившему и начисляет
// бонус обоим. Проверки по порядку: код существует, код не свой,
// аккаунт ещё не приглашён.
func (s *Service) ApplyReferral(ctx context.Context, newAccountID, code string) (*ApplyResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, common.ErrUnknownCode
	}

	referrerID, err := s.store.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrerID == newAccountID {
		return nil, common.ErrSelfReferral
	}

	now := s.now()
	err = s.store.UpdatePair(ctx, newAccountID, referrerID, func(invited, referrer *accounts.Account) error {
		if invited.ReferredBy != "" {
			return common.Reject(common.ErrAlreadyReferred, "referred_by", invited.ReferredBy)
		}
		// храним код пригласившего: он неизменен, как и сам ReferredBy
		invited.ReferredBy = referrer.ReferralCode
		referrer.ReferralCount++
		if _, err := ledger.Credit(invited, s.asset, s.bonus, accounts.KindReferralBonus, "", now); err != nil {
			return err
		}
		_, err := ledger.Credit(referrer, s.asset, s.bonus, accounts.KindReferralBonus, "", now)
		return err
	})
	if err != nil {
		if common.IsRejection(err) {
			log.WithError(err).WithField("account_id", newAccountID).Debug("Реферальный код отклонён")
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id":  newAccountID,
		"referrer_id": referrerID,
		"bonus":       common.FormatAmount(s.asset, s.bonus),
	}).Info("Реферальный код применён")
	return &ApplyResult{ReferrerID: referrerID, Asset: s.asset, Bonus: s.bonus}, nil
}

// Summary возвращает реферальные данные аккаунта.
func (s *Service) Summary(ctx context.Context, accountID string) (*Summary, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Code:       acc.ReferralCode,
		Count:      acc.ReferralCount,
		ReferredBy: acc.ReferredBy,
	}
	if sum.Code != "" {
		sum.Link = s.Link(sum.Code)
	}
	return sum, nil
}

// NormalizeCode убирает пробелы и приводит код к верхнему регистру.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
