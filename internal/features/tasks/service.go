// Package tasks: service.go реализует переходы статусов заданий.
//
// Статусы:
//
//	url-submission-with-review: Idle → PendingReview → Completed
//	instant-callback, email-capture: Idle → Completed
//
// Повторный submit/approve по выполненному заданию ничего не меняет и
// возвращает текущий статус: награда начисляется ровно один раз.
package tasks

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
)

// noCutoff: верхняя граница выборки всех заявок на проверке.
var noCutoff = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// Service управляет заданиями.
type Service struct {
	store   accounts.Store
	catalog *Catalog
	slaMin  int
	slaMax  int
	expiry  time.Duration
	now     func() time.Time
}

// NewService создаёт сервис заданий.
func NewService(store accounts.Store, catalog *Catalog, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		slaMin:  cfg.ReviewSLAMinDays,
		slaMax:  cfg.ReviewSLAMaxDays,
		expiry:  cfg.ReviewExpiry,
		now:     common.Now,
	}
}

// Catalog возвращает каталог заданий.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// StartTask начинает задание.
// Для instant-callback задание переходит в PendingReview до ответа внешнего
// сервиса, для остальных режимов остаётся в Idle до отправки данных.
func (s *Service) StartTask(ctx context.Context, accountID, taskID string) (accounts.TaskStatus, error) {
	def, err := s.definition(taskID)
	if err != nil {
		return accounts.TaskStatus{}, err
	}

	var out accounts.TaskStatus
	err = s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		if err := checkPrerequisite(acc, def); err != nil {
			return err
		}
		st := acc.Task(def.ID)
		if st.State != accounts.TaskIdle || def.Mode != ModeInstantCallback {
			out = st
			return nil
		}

		now := s.now()
		s.claimPlace(acc, def)
		st.State = accounts.TaskPendingReview
		st.SubmittedAt = &now
		st.UpdatedAt = now
		acc.Tasks[def.ID] = st
		out = st
		return nil
	})
	if err != nil {
		s.logRejection(err, accountID, taskID, "start")
		return accounts.TaskStatus{}, err
	}
	return out, nil
}

// Submit принимает ссылку, email или подтверждение внешнего сервиса.
func (s *Service) Submit(ctx context.Context, accountID, taskID string, sub Submission) (accounts.TaskStatus, error) {
	def, err := s.definition(taskID)
	if err != nil {
		return accounts.TaskStatus{}, err
	}

	var (
		out      accounts.TaskStatus
		credited bool
	)
	err = s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		st := acc.Task(def.ID)
		if st.State == accounts.TaskCompleted {
			out = st
			return nil
		}
		if err := checkPrerequisite(acc, def); err != nil {
			return err
		}
		if def.Mode == ModeURLReview && st.State == accounts.TaskPendingReview {
			return common.Reject(common.ErrInvalidTransition, "state", string(st.State))
		}

		clean, err := normalizeSubmission(def, sub)
		if err != nil {
			return err
		}

		now := s.now()
		if st.State == accounts.TaskIdle {
			s.claimPlace(acc, def)
		}
		st.Payload = clean.Payload
		st.Platform = clean.Platform
		st.UpdatedAt = now
		if st.SubmittedAt == nil {
			st.SubmittedAt = &now
		}

		if def.Mode == ModeURLReview {
			st.State = accounts.TaskPendingReview
			st.SubmittedAt = &now
		} else {
			if err := s.complete(acc, def, &st, now); err != nil {
				return err
			}
			credited = true
		}
		acc.Tasks[def.ID] = st
		out = st
		return nil
	})
	if err != nil {
		s.logRejection(err, accountID, taskID, "submit")
		return accounts.TaskStatus{}, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"task_id":    taskID,
		"state":      out.State,
		"credited":   credited,
	}).Info("Заявка по заданию принята")
	return out, nil
}

// Approve: решение ревьюера или внешнего сервиса: PendingReview → Completed.
func (s *Service) Approve(ctx context.Context, accountID, taskID string) (accounts.TaskStatus, error) {
	def, err := s.definition(taskID)
	if err != nil {
		return accounts.TaskStatus{}, err
	}

	var (
		out      accounts.TaskStatus
		credited bool
	)
	err = s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		st := acc.Task(def.ID)
		switch st.State {
		case accounts.TaskCompleted:
			out = st
			return nil
		case accounts.TaskPendingReview:
		default:
			return common.Reject(common.ErrInvalidTransition, "state", string(st.State))
		}

		if err := s.complete(acc, def, &st, s.now()); err != nil {
			return err
		}
		acc.Tasks[def.ID] = st
		out = st
		credited = true
		return nil
	})
	if err != nil {
		s.logRejection(err, accountID, taskID, "approve")
		return accounts.TaskStatus{}, err
	}

	if credited {
		log.WithFields(log.Fields{
			"account_id": accountID,
			"task_id":    taskID,
			"reward":     common.FormatAmount(def.Asset, def.Amount),
		}).Info("Задание подтверждено")
	}
	return out, nil
}

// Resubmit возвращает заявку на проверке в Idle для повторной отправки.
func (s *Service) Resubmit(ctx context.Context, accountID, taskID string) (accounts.TaskStatus, error) {
	def, err := s.definition(taskID)
	if err != nil {
		return accounts.TaskStatus{}, err
	}

	var out accounts.TaskStatus
	err = s.store.Update(ctx, accountID, func(acc *accounts.Account) error {
		st := acc.Task(def.ID)
		if st.State != accounts.TaskPendingReview {
			return common.Reject(common.ErrInvalidTransition, "state", string(st.State))
		}
		st = resetToIdle(st, s.now())
		acc.Tasks[def.ID] = st
		out = st
		return nil
	})
	if err != nil {
		s.logRejection(err, accountID, taskID, "resubmit")
		return accounts.TaskStatus{}, err
	}

	log.WithFields(log.Fields{"account_id": accountID, "task_id": taskID}).Info("Заявка возвращена на доработку")
	return out, nil
}

// Statuses возвращает все задания каталога со статусами аккаунта.
func (s *Service) Statuses(ctx context.Context, accountID string) ([]View, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	defs := s.catalog.List()
	out := make([]View, 0, len(defs))
	for _, def := range defs {
		st := acc.Task(def.ID)
		v := View{
			Definition: def,
			Status:     st,
			Reward:     common.FormatSigned(def.Asset, def.Amount),
			Locked:     def.Prerequisite != "" && acc.Task(def.Prerequisite).State != accounts.TaskCompleted,
		}
		if def.ParticipantLimit > 0 {
			n, err := s.store.TaskParticipants(ctx, def.ID)
			if err != nil {
				return nil, err
			}
			v.Participants = n
		}
		if st.State == accounts.TaskPendingReview && st.SubmittedAt != nil && def.Mode == ModeURLReview {
			v.Review = &ReviewWindow{
				From: common.FormatDate(common.AddBusinessDays(*st.SubmittedAt, s.slaMin)),
				To:   common.FormatDate(common.AddBusinessDays(*st.SubmittedAt, s.slaMax)),
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// PendingReviews: очередь заявок для ревьюеров, старые сверху.
// Только задания url-submission-with-review. limit <= 0: все заявки.
func (s *Service) PendingReviews(ctx context.Context, limit int) ([]accounts.PendingReview, error) {
	return s.store.PendingReviews(ctx, s.catalog.IDsByMode(ModeURLReview), noCutoff, limit)
}

// Reviewable: решение по заданию принимает ревьюер.
func (s *Service) Reviewable(taskID string) bool {
	def, ok := s.catalog.Get(taskID)
	return ok && def.Mode == ModeURLReview
}

// ExpireReviews возвращает в Idle заявки, которые ждут проверки дольше
// REVIEW_EXPIRY. При нулевом сроке ничего не делает.
func (s *Service) ExpireReviews(ctx context.Context, now time.Time) (int, error) {
	if s.expiry <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.expiry)
	// instant-callback ждут внешний сервис, срок на них не распространяется
	stale, err := s.store.PendingReviews(ctx, s.catalog.IDsByMode(ModeURLReview), cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения заявок на проверке: %w", err)
	}

	expired := 0
	for _, r := range stale {
		changed := false
		err := s.store.Update(ctx, r.AccountID, func(acc *accounts.Account) error {
			st := acc.Task(r.TaskID)
			// заявку могли подтвердить или переотправить после выборки
			if st.State != accounts.TaskPendingReview || st.SubmittedAt == nil || !st.SubmittedAt.Before(cutoff) {
				return nil
			}
			acc.Tasks[r.TaskID] = resetToIdle(st, now)
			changed = true
			return nil
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"account_id": r.AccountID,
				"task_id":    r.TaskID,
			}).Error("Ошибка сброса просроченной заявки")
			continue
		}
		if changed {
			expired++
		}
	}

	if expired > 0 {
		log.WithField("count", expired).Info("Просроченные заявки возвращены в Idle")
	}
	return expired, nil
}

func (s *Service) definition(taskID string) (Definition, error) {
	def, ok := s.catalog.Get(taskID)
	if !ok {
		return Definition{}, common.Reject(common.ErrTaskNotFound, "task_id", taskID)
	}
	return def, nil
}

// complete переводит задание в Completed и начисляет награду.
func (s *Service) complete(acc *accounts.Account, def Definition, st *accounts.TaskStatus, now time.Time) error {
	if _, err := ledger.Credit(acc, def.Asset, def.Amount, accounts.KindTaskCompletion, def.ID, now); err != nil {
		return err
	}
	st.State = accounts.TaskCompleted
	st.CompletedAt = &now
	st.UpdatedAt = now
	return nil
}

// claimPlace занимает место в кампании с лимитом при первом выходе из Idle.
func (s *Service) claimPlace(acc *accounts.Account, def Definition) {
	if def.ParticipantLimit > 0 {
		acc.ClaimParticipant(def.ID, def.ParticipantLimit)
	}
}

func (s *Service) logRejection(err error, accountID, taskID, op string) {
	entry := log.WithError(err).WithFields(log.Fields{
		"account_id": accountID,
		"task_id":    taskID,
		"op":         op,
	})
	if common.IsRejection(err) {
		entry.Debug("Операция с заданием отклонена")
		return
	}
	entry.Error("Ошибка операции с заданием")
}

func checkPrerequisite(acc *accounts.Account, def Definition) error {
	if def.Prerequisite == "" {
		return nil
	}
	if acc.Task(def.Prerequisite).State != accounts.TaskCompleted {
		return common.Reject(common.ErrPrerequisiteNotMet, "prerequisite", def.Prerequisite)
	}
	return nil
}

func resetToIdle(st accounts.TaskStatus, now time.Time) accounts.TaskStatus {
	return accounts.TaskStatus{
		TaskID:    st.TaskID,
		State:     accounts.TaskIdle,
		UpdatedAt: now,
	}
}
