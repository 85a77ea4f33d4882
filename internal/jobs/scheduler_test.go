package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeQueue struct {
	expired   int
	expireErr error
	pending   []accounts.PendingReview
	calls     int
}

func (q *fakeQueue) ExpireReviews(_ context.Context, _ time.Time) (int, error) {
	q.calls++
	return q.expired, q.expireErr
}

func (q *fakeQueue) PendingReviews(_ context.Context, limit int) ([]accounts.PendingReview, error) {
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

type fakePurger struct{ calls int }

func (p *fakePurger) PurgeExpired(time.Time) int {
	p.calls++
	return 2
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func baseConfig() *config.Config {
	return &config.Config{
		JobExpirySchedule: "0 * * * *",
		JobDigestSchedule: "0 10 * * *",
	}
}

func TestSweepSkipsExpiryWhenDisabled(t *testing.T) {
	q, p := &fakeQueue{}, &fakePurger{}
	s := NewScheduler(baseConfig(), q, p, nil)

	s.sweep(context.Background())
	assert.Zero(t, q.calls)
	assert.Equal(t, 1, p.calls)

	cfg := baseConfig()
	cfg.ReviewExpiry = 72 * time.Hour
	q.expireErr = errors.New("db down")
	s = NewScheduler(cfg, q, p, nil)
	s.sweep(context.Background())
	assert.Equal(t, 1, q.calls)
	// ошибка очереди не мешает очистке OTP
	assert.Equal(t, 2, p.calls)
}

func TestDigest(t *testing.T) {
	submitted := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)
	q := &fakeQueue{pending: []accounts.PendingReview{
		{AccountID: "a", TaskID: "imei-share", SubmittedAt: submitted},
		{AccountID: "b", TaskID: "imei-buy", SubmittedAt: submitted.Add(time.Hour)},
	}}
	n := &fakeNotifier{}
	s := NewScheduler(baseConfig(), q, &fakePurger{}, n)

	s.digest(context.Background())
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "На проверке 2 заявок")
	assert.Contains(t, n.texts[0], "07.03.2025 17:30")

	q.pending = nil
	s.digest(context.Background())
	assert.Len(t, n.texts, 1)
}

func TestDigestCapsCount(t *testing.T) {
	list := make([]accounts.PendingReview, digestLimit+5)
	assert.Contains(t, digestText(list[:digestLimit]), "100+")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := baseConfig()
	cfg.JobExpirySchedule = "каждый час"
	s := NewScheduler(cfg, &fakeQueue{}, &fakePurger{}, nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(baseConfig(), &fakeQueue{}, &fakePurger{}, &fakeNotifier{})
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
