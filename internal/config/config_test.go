package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Taipei", cfg.AppTimezone)
	assert.Equal(t, "HONEY", cfg.StreakRewardAsset)
	assert.False(t, cfg.StreakResetOnMiss)
	assert.Equal(t, time.Duration(0), cfg.ReviewExpiry)
	assert.Equal(t, 60*time.Second, cfg.OTPResendInterval)

	mins := cfg.Minimums()
	assert.True(t, mins["USDT"].Equal(decimal.NewFromInt(10)))
	assert.True(t, mins["WBTC"].Equal(decimal.RequireFromString("0.00011")))
	assert.True(t, cfg.ReferralBonus().Equal(decimal.NewFromInt(10)))
}

func TestLoadReviewerIDs(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")
	t.Setenv("REVIEWER_IDS", "101, 202,,303")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 202, 303}, cfg.ReviewerIDs)

	t.Setenv("REVIEWER_IDS", "101,abc")
	_, err = Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AppStorage:          "memory",
			WithdrawalMinUSDT:   "10",
			WithdrawalMinWBTC:   "0.00011",
			RateUSDTTWD:         "31.3",
			RateWBTCTWD:         "2850000",
			ReferralBonusAmount: "10",
			ReviewSLAMinDays:    5,
			ReviewSLAMaxDays:    7,
			RateLimitRequests:   10,
			RateLimitWindow:     time.Minute,
			OTPMaxAttempts:      5,
			OTPTTL:              time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad minimum", mutate: func(c *Config) { c.WithdrawalMinUSDT = "ten" }, wantErr: true},
		{name: "zero bonus", mutate: func(c *Config) { c.ReferralBonusAmount = "0" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.AppStorage = "redis" }, wantErr: true},
		{name: "postgres without password", mutate: func(c *Config) { c.AppStorage = "postgres" }, wantErr: true},
		{name: "sla inverted", mutate: func(c *Config) { c.ReviewSLAMaxDays = 3 }, wantErr: true},
		{name: "bot without token", mutate: func(c *Config) { c.FeatureReviewBotEnabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
