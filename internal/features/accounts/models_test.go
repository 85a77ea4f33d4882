package accounts

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	acc := New("acc-1", now)
	acc.Balances["HONEY"] = decimal.NewFromInt(3)
	acc.Tasks["identity"] = TaskStatus{TaskID: "identity", State: TaskCompleted, CompletedAt: &now}
	acc.Streak.LastClaimedAt = &now
	acc.Wallet = &WalletBinding{ExchangeUID: "EX123456", BoundAt: now}
	acc.Append(RewardEvent{ID: "e1"})
	acc.ClaimParticipant("imei-buy", 300)

	c := acc.Clone()
	c.Balances["HONEY"] = decimal.NewFromInt(100)
	*c.Tasks["identity"].CompletedAt = now.Add(time.Hour)
	*c.Streak.LastClaimedAt = now.Add(time.Hour)
	c.Wallet.ExchangeUID = "OTHER1"

	assert.True(t, acc.Balance("HONEY").Equal(decimal.NewFromInt(3)))
	assert.Equal(t, now, *acc.Tasks["identity"].CompletedAt)
	assert.Equal(t, now, *acc.Streak.LastClaimedAt)
	assert.Equal(t, "EX123456", acc.Wallet.ExchangeUID)
	assert.Empty(t, c.Pending())
	assert.Empty(t, c.claims)
	assert.Len(t, acc.Pending(), 1)
}

func TestTaskDefaultsToIdle(t *testing.T) {
	acc := New("acc-1", time.Now())
	st := acc.Task("discord")
	assert.Equal(t, TaskIdle, st.State)
	assert.Equal(t, "discord", st.TaskID)
}

func TestStreakTerminal(t *testing.T) {
	var st StreakState
	assert.False(t, st.Terminal())
	st.DayCompleted[StreakDays-1] = true
	assert.True(t, st.Terminal())
}

func TestEventKindValid(t *testing.T) {
	assert.True(t, KindWithdrawalDebit.Valid())
	assert.False(t, EventKind("bonus").Valid())
}

func TestLockerSerializesKey(t *testing.T) {
	l := NewLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("acc-1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.size())
}

func TestLockerDuplicateKeys(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock("a", "a", "b")
	require.Equal(t, 2, l.size())
	unlock()
	assert.Zero(t, l.size())
}
