package referral

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
)

func newTestService() (*Service, *accounts.MemoryStore) {
	store := accounts.NewMemoryStore()
	cfg := &config.Config{
		ReferralBonusAsset:  "HONEY",
		ReferralBonusAmount: "10",
		ReferralLinkBase:    "https://bitbee.app/register?ref=",
	}
	return NewService(store, cfg), store
}

func TestGenerateCodeIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	code, err := svc.GenerateCode(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	assert.Regexp(t, "^[0-9A-Z]{6}$", code)

	again, err := svc.GenerateCode(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	sum, err := svc.Summary(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://bitbee.app/register?ref="+code, sum.Link)
}

func TestGenerateCodeRetriesOnCollision(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := svc.GenerateCode(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first)

	second, err := svc.GenerateCode(ctx, "acc-2")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second)
}

func TestApplyReferral(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	code, err := svc.GenerateCode(ctx, "referrer")
	require.NoError(t, err)

	res, err := svc.ApplyReferral(ctx, "invited", " "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, "referrer", res.ReferrerID)

	invited, err := store.Get(ctx, "invited")
	require.NoError(t, err)
	referrer, err := store.Get(ctx, "referrer")
	require.NoError(t, err)

	assert.Equal(t, code, invited.ReferredBy)
	assert.Equal(t, 1, referrer.ReferralCount)
	assert.True(t, invited.Balance("HONEY").Equal(decimal.NewFromInt(10)))
	assert.True(t, referrer.Balance("HONEY").Equal(decimal.NewFromInt(10)))

	// повторное применение: отказ, бонус не дублируется
	_, err = svc.ApplyReferral(ctx, "invited", code)
	require.ErrorIs(t, err, common.ErrAlreadyReferred)
	assert.Equal(t, code, common.DetailsOf(err)["referred_by"])

	sum, err := svc.Summary(ctx, "invited")
	require.NoError(t, err)
	assert.Equal(t, code, sum.ReferredBy)

	referrer, err = store.Get(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.ReferralCount)
	for _, id := range []string{"invited", "referrer"} {
		_, total, err := store.Events(ctx, id, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total, id)
	}
}

func TestApplyReferralRejections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	code, err := svc.GenerateCode(ctx, "referrer")
	require.NoError(t, err)

	_, err = svc.ApplyReferral(ctx, "invited", "ZZZZZZ")
	assert.ErrorIs(t, err, common.ErrUnknownCode)

	_, err = svc.ApplyReferral(ctx, "invited", "")
	assert.ErrorIs(t, err, common.ErrUnknownCode)

	_, err = svc.ApplyReferral(ctx, "referrer", code)
	assert.ErrorIs(t, err, common.ErrSelfReferral)
}
