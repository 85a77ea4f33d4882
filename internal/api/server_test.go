package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/ledger"
	"bitbee.app/rewards-core/internal/features/referral"
	"bitbee.app/rewards-core/internal/features/streak"
	"bitbee.app/rewards-core/internal/features/tasks"
	"bitbee.app/rewards-core/internal/features/wallet"
	"bitbee.app/rewards-core/internal/features/withdrawal"
)

func TestMain(m *testing.M) {
	// фоновые таймеры fasthttp и хранилища limiter'а живут до конца процесса
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/valyala/fasthttp.updateServerDate.func1"),
		goleak.IgnoreTopFunction("github.com/gofiber/fiber/v2/internal/memory.(*Storage).gc"),
		goleak.IgnoreTopFunction("github.com/gofiber/fiber/v2/utils.StartTimeStampUpdater.func1.1"),
	)
}

const testToken = "service-secret"

func testConfig() *config.Config {
	return &config.Config{
		HTTPReadTimeout:     time.Second,
		HTTPWriteTimeout:    time.Second,
		ServiceToken:        testToken,
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		StreakRewardAsset:   "HONEY",
		ReferralBonusAsset:  "HONEY",
		ReferralBonusAmount: "10",
		ReferralLinkBase:    "https://bitbee.app/register?ref=",
		WithdrawalMinUSDT:   "10",
		WithdrawalMinWBTC:   "0.00011",
		RateUSDTTWD:         "31.3",
		RateWBTCTWD:         "2850000",
		ReviewSLAMinDays:    5,
		ReviewSLAMaxDays:    7,
		OTPTTL:              5 * time.Minute,
		OTPResendInterval:   time.Minute,
		OTPMaxAttempts:      5,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	store := accounts.NewMemoryStore()
	srv := NewServer(cfg, Services{
		Ledger:     ledger.NewService(store),
		Streak:     streak.NewService(store, cfg),
		Tasks:      tasks.NewService(store, tasks.DefaultCatalog(), cfg),
		Referral:   referral.NewService(store, cfg),
		Withdrawal: withdrawal.NewService(store, nil, cfg),
		Wallet:     wallet.NewService(store, nil, cfg),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

type call struct {
	method  string
	path    string
	account string
	token   string
	body    string
}

func do(t *testing.T, srv *Server, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.account != "" {
		req.Header.Set("X-Account-ID", c.account)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestAccountHeaderRequired(t *testing.T) {
	srv := newTestServer(t, testConfig())

	status, body := do(t, srv, call{method: http.MethodGet, path: "/v1/me/balances"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, _ = do(t, srv, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, status)
}

func TestStreakClaimTwice(t *testing.T) {
	srv := newTestServer(t, testConfig())

	status, body := do(t, srv, call{method: http.MethodPost, path: "/v1/me/streak/claim", account: "acc-1"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = do(t, srv, call{method: http.MethodPost, path: "/v1/me/streak/claim", account: "acc-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_CLAIMED_TODAY", body["code"])
	assert.Equal(t, common.ErrAlreadyClaimedToday.Error(), body["error"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, details["next_claim_date"])

	status, body = do(t, srv, call{method: http.MethodGet, path: "/v1/me/balances", account: "acc-1"})
	require.Equal(t, http.StatusOK, status)
	balances := body["balances"].([]any)
	require.Len(t, balances, 1)
	assert.Equal(t, "1", balances[0].(map[string]any)["display"])
}

func TestTaskFlowThroughCallbacks(t *testing.T) {
	srv := newTestServer(t, testConfig())

	status, body := do(t, srv, call{method: http.MethodPost, path: "/v1/me/tasks/discord/start", account: "acc-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "PREREQUISITE_NOT_MET", body["code"])

	// пользователь не может сам закрыть задание с внешним подтверждением
	status, _ = do(t, srv, call{method: http.MethodPost, path: "/v1/me/tasks/identity/submit", account: "acc-1", body: `{"payload":"x"}`})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, srv, call{method: http.MethodPost, path: "/internal/tasks/identity/callback", body: `{"accountId":"acc-1","payload":"kyc-1"}`})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = do(t, srv, call{method: http.MethodPost, path: "/internal/tasks/identity/callback", token: testToken, body: `{"accountId":"acc-1","payload":"kyc-1"}`})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Completed", body["state"])

	status, body = do(t, srv, call{method: http.MethodPost, path: "/v1/me/tasks/imei-share/submit", account: "acc-1", body: `{"payload":"https://threads.net/p/1","platform":"threads"}`})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "PendingReview", body["state"])

	status, body = do(t, srv, call{method: http.MethodGet, path: "/internal/reviews", token: testToken})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["reviews"], 1)

	status, body = do(t, srv, call{method: http.MethodPost, path: "/internal/tasks/imei-share/approve", token: testToken, body: `{"accountId":"acc-1"}`})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Completed", body["state"])

	status, body = do(t, srv, call{method: http.MethodGet, path: "/internal/accounts/acc-1/audit", token: testToken})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])

	status, body = do(t, srv, call{method: http.MethodGet, path: "/v1/me/history", account: "acc-1"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])

	status, _ = do(t, srv, call{method: http.MethodPost, path: "/internal/tasks/imei-share/approve", token: testToken, body: `{}`})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWithdrawalRejections(t *testing.T) {
	srv := newTestServer(t, testConfig())

	status, body := do(t, srv, call{method: http.MethodPost, path: "/v1/me/withdrawals/validate", account: "acc-1", body: `{"asset":"USDT","amount":"5"}`})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["code"])

	status, body = do(t, srv, call{method: http.MethodPost, path: "/v1/me/withdrawals", account: "acc-1", body: `{"asset":"USDT","amount":"0"}`})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_AMOUNT", body["code"])

	status, _ = do(t, srv, call{method: http.MethodPost, path: "/v1/me/withdrawals", account: "acc-1", body: `{"asset":`})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, call{method: http.MethodGet, path: "/v1/me/withdrawals/quote?asset=usdt&amount=10", account: "acc-1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10", body["minimum"])
	assert.Equal(t, "≈ 313 TWD", body["estimate"].(map[string]any)["display"])
}

func TestReferralOverHTTP(t *testing.T) {
	srv := newTestServer(t, testConfig())

	status, body := do(t, srv, call{method: http.MethodPost, path: "/v1/me/referral/code", account: "referrer"})
	require.Equal(t, http.StatusOK, status)
	code := body["referralCode"].(string)

	status, _ = do(t, srv, call{method: http.MethodPost, path: "/v1/me/referral/apply", account: "invited", body: `{"code":"` + code + `"}`})
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, srv, call{method: http.MethodPost, path: "/v1/me/referral/apply", account: "invited", body: `{"code":"` + code + `"}`})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_REFERRED", body["code"])

	status, body = do(t, srv, call{method: http.MethodPost, path: "/v1/me/referral/apply", account: "other", body: `{"code":"NOPE00"}`})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_CODE", body["code"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		status, _ := do(t, srv, call{method: http.MethodGet, path: "/v1/me/balances", account: "acc-1"})
		require.Equal(t, http.StatusOK, status)
	}
	status, body := do(t, srv, call{method: http.MethodGet, path: "/v1/me/balances", account: "acc-1"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body["code"])

	// лимит считается по аккаунту
	status, _ = do(t, srv, call{method: http.MethodGet, path: "/v1/me/balances", account: "acc-2"})
	assert.Equal(t, http.StatusOK, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(common.ErrLedgerMismatch))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(common.Reject(common.ErrOTPCooldown, "retry_after", "30")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(common.ErrBelowMinimum))
	assert.Equal(t, http.StatusNotFound, statusFor(common.ErrTaskNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(common.ErrWalletNotBound))
}

func TestWalletNotBound(t *testing.T) {
	srv := newTestServer(t, testConfig())
	status, body := do(t, srv, call{method: http.MethodGet, path: "/v1/me/wallet", account: "acc-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WALLET_NOT_BOUND", body["code"])
}

func TestPanicRecovered(t *testing.T) {
	srv := newTestServer(t, testConfig())
	srv.App().Get("/boom", func(c *fiber.Ctx) error {
		panic("сломалось")
	})

	status, body := do(t, srv, call{method: http.MethodGet, path: "/boom"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", body["code"])
	assert.Equal(t, "внутренняя ошибка сервера", body["error"])

	// сервер продолжает отвечать
	status, _ = do(t, srv, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, status)
}
