// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: очистка просроченных заявок и OTP,
// ежедневная сводка очереди проверки для ревьюеров.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
)

// digestLimit: сколько заявок считаем в сводке, дальше пишем «N+».
const digestLimit = 100

// ReviewQueue: очередь проверки (*tasks.Service).
type ReviewQueue interface {
	ExpireReviews(ctx context.Context, now time.Time) (int, error)
	PendingReviews(ctx context.Context, limit int) ([]accounts.PendingReview, error)
}

// OTPPurger: очистка просроченных кодов (*wallet.Service).
type OTPPurger interface {
	PurgeExpired(now time.Time) int
}

// Notifier: получатель сводки (бот ревьюеров).
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	reviews  ReviewQueue
	otp      OTPPurger
	notifier Notifier
	now      func() time.Time
}

// NewScheduler создаёт планировщик в опорном часовом поясе.
// notifier может быть nil: тогда сводка не отправляется.
func NewScheduler(cfg *config.Config, reviews ReviewQueue, otp OTPPurger, notifier Notifier) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(common.Location())),
		cfg:      cfg,
		reviews:  reviews,
		otp:      otp,
		notifier: notifier,
		now:      common.Now,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.JobExpirySchedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("JOB_EXPIRY_SCHEDULE %q: %w", s.cfg.JobExpirySchedule, err)
	}
	if s.notifier != nil {
		if _, err := s.cron.AddFunc(s.cfg.JobDigestSchedule, func() { s.digest(ctx) }); err != nil {
			return fmt.Errorf("JOB_DIGEST_SCHEDULE %q: %w", s.cfg.JobDigestSchedule, err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"timezone": common.Location().String(),
		"jobs":     len(s.cron.Entries()),
	}).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// sweep снимает заявки, которые слишком долго ждут проверки,
// и удаляет просроченные коды привязки кошелька.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()

	if s.cfg.ReviewExpiry > 0 {
		n, err := s.reviews.ExpireReviews(ctx, now)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка снятия просроченных заявок")
		} else if n > 0 {
			log.WithField("expired", n).Info("[CRON] Просроченные заявки возвращены в Idle")
		}
	}

	if n := s.otp.PurgeExpired(now); n > 0 {
		log.WithField("purged", n).Debug("[CRON] Удалены просроченные OTP")
	}
}

func (s *Scheduler) digest(ctx context.Context) {
	list, err := s.reviews.PendingReviews(ctx, digestLimit)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сводки очереди проверки")
		return
	}
	if len(list) == 0 {
		log.Debug("[CRON] Очередь проверки пуста, сводка не нужна")
		return
	}
	s.notifier.Notify(ctx, digestText(list))
}

func digestText(list []accounts.PendingReview) string {
	count := fmt.Sprintf("%d", len(list))
	if len(list) >= digestLimit {
		count += "+"
	}
	// список отсортирован: старые сверху
	oldest := list[0].SubmittedAt
	return fmt.Sprintf("📋 На проверке %s заявок, самая старая от %s.\n/pending — открыть очередь",
		count, common.FormatDateTime(oldest))
}
