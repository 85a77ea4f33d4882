// Package streak: service.go содержит бизнес-логику ежедневной награды.
// Смена дня определяется только сравнением календарных дат в опорном поясе.
package streak

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
)

// Service управляет стриком.
type Service struct {
	store         accounts.Store
	asset         string
	resetOnMiss   bool // пропуск дня сбрасывает серию на день 1
	requireWallet bool // без привязанного кошелька награду не выдаём
}

// NewService создаёт сервис стрика.
func NewService(store accounts.Store, cfg *config.Config) *Service {
	return &Service{
		store:         store,
		asset:         common.NormalizeAsset(cfg.StreakRewardAsset),
		resetOnMiss:   cfg.StreakResetOnMiss,
		requireWallet: cfg.StreakRequireWallet,
	}
}

// ClaimDaily выдаёт награду за текущий день стрика.
//
// Алгоритм:
//  1. Награда за эту дату уже получена → ErrAlreadyClaimedToday,
//     дата раньше последней награды → ErrClaimBeforeLast
//  2. Все 7 дней пройдены → ErrStreakComplete
//  3. Отмечаем день, двигаем индекс (не дальше 6), начисляем награду
//
// Всё выполняется одной единицей работы: стрик и баланс меняются вместе.
func (s *Service) ClaimDaily(ctx context.Context, accountID string, now time.Time) (*ClaimResult, error) {
	var res ClaimResult
	err := s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		if s.requireWallet && acc.Wallet == nil {
			return common.ErrWalletNotBound
		}

		st := acc.Streak
		if st.LastClaimedAt != nil {
			switch days := common.DaysBetween(*st.LastClaimedAt, now); {
			case days == 0:
				return common.Reject(common.ErrAlreadyClaimedToday,
					"next_claim_date", common.FormatDate(nextDate(*st.LastClaimedAt)))
			case days < 0:
				return common.Reject(common.ErrClaimBeforeLast,
					"last_claimed_date", common.FormatDate(*st.LastClaimedAt))
			}
		}
		if st.Terminal() {
			return common.ErrStreakComplete
		}
		if s.missed(st, now) {
			st = accounts.StreakState{}
		}

		reward := RewardFor(st.CurrentDayIndex, s.asset)
		ev, err := ledger.Credit(acc, reward.Asset, reward.Amount, accounts.KindDailyStreak, "", now)
		if err != nil {
			return err
		}

		st.DayCompleted[st.CurrentDayIndex] = true
		if st.CurrentDayIndex < bonusDay {
			st.CurrentDayIndex++
		}
		claimed := now
		st.LastClaimedAt = &claimed
		acc.Streak = st

		res = ClaimResult{Reward: reward, Event: ev, State: st}
		return nil
	})
	if err != nil {
		if common.IsRejection(err) {
			log.WithError(err).WithField("account_id", accountID).Debug("Ежедневная награда отклонена")
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"day":        res.Reward.Day + 1,
		"amount":     res.Reward.Amount.String(),
		"asset":      res.Reward.Asset,
		"bonus":      res.Reward.Bonus,
	}).Info("Ежедневная награда выдана")
	return &res, nil
}

// State возвращает состояние стрика для экрана наград на момент now.
func (s *Service) State(ctx context.Context, accountID string, now time.Time) (*View, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	st := acc.Streak
	v := &View{State: st, Rewards: Table(s.asset)}
	if st.Terminal() {
		return v, nil
	}

	day := st.CurrentDayIndex
	if s.missed(st, now) {
		day = 0
	}
	next := RewardFor(day, s.asset)
	v.NextReward = &next

	claimedToday := st.LastClaimedAt != nil && common.DaysBetween(*st.LastClaimedAt, now) <= 0
	switch {
	case claimedToday:
		v.NextClaimDate = common.FormatDate(nextDate(*st.LastClaimedAt))
	case s.requireWallet && acc.Wallet == nil:
		// дата не показывается, пока нет кошелька
	default:
		v.CanClaim = true
		v.NextClaimDate = common.FormatDate(now)
	}
	return v, nil
}

// missed: с последней награды пропущен хотя бы один календарный день
// и включён сброс серии.
func (s *Service) missed(st accounts.StreakState, now time.Time) bool {
	return s.resetOnMiss && st.LastClaimedAt != nil && common.DaysBetween(*st.LastClaimedAt, now) > 1
}

func nextDate(t time.Time) time.Time {
	return common.DateOf(t).AddDate(0, 0, 1)
}
