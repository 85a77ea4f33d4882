// Package config загружает конфигурацию сервиса наград из переменных окружения.
// Используется envconfig для маппинга переменных на поля структуры,
// а godotenv подхватывает .env при локальном запуске.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"bitbee"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"bitbee_rewards"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv       string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel  string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppLogFormat string `envconfig:"APP_LOG_FORMAT" default:"text"`
	// Опорный пояс: по нему определяется «сегодня» для стрика
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Taipei"`
	// postgres: боевое хранилище, memory: для локальной разработки без БД
	AppStorage string `envconfig:"APP_STORAGE" default:"postgres"`

	// --- HTTP ---
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	// Токен для внутренних вызовов (провайдер верификации, Discord, ревью)
	ServiceToken string `envconfig:"SERVICE_TOKEN"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Streak ---
	StreakRewardAsset   string `envconfig:"STREAK_REWARD_ASSET" default:"HONEY"`
	StreakResetOnMiss   bool   `envconfig:"STREAK_RESET_ON_MISS" default:"false"`
	StreakRequireWallet bool   `envconfig:"STREAK_REQUIRE_WALLET" default:"false"`

	// --- Referral ---
	ReferralBonusAsset  string `envconfig:"REFERRAL_BONUS_ASSET" default:"HONEY"`
	ReferralBonusAmount string `envconfig:"REFERRAL_BONUS_AMOUNT" default:"10"`
	ReferralLinkBase    string `envconfig:"REFERRAL_LINK_BASE" default:"https://bitbee.app/register?ref="`

	// --- Withdrawal ---
	WithdrawalMinUSDT string `envconfig:"WITHDRAWAL_MIN_USDT" default:"10"`
	WithdrawalMinWBTC string `envconfig:"WITHDRAWAL_MIN_WBTC" default:"0.00011"`
	RateUSDTTWD       string `envconfig:"RATE_USDT_TWD" default:"31.3"`
	RateWBTCTWD       string `envconfig:"RATE_WBTC_TWD" default:"2850000"`

	// --- Review ---
	ReviewSLAMinDays int `envconfig:"REVIEW_SLA_MIN_DAYS" default:"5"`
	ReviewSLAMaxDays int `envconfig:"REVIEW_SLA_MAX_DAYS" default:"7"`
	// 0: заявки на проверке не истекают
	ReviewExpiry time.Duration `envconfig:"REVIEW_EXPIRY" default:"0"`

	// --- Wallet binding ---
	OTPTTL            time.Duration `envconfig:"OTP_TTL" default:"5m"`
	OTPResendInterval time.Duration `envconfig:"OTP_RESEND_INTERVAL" default:"60s"`
	OTPMaxAttempts    int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`

	// --- Review bot (Telegram) ---
	FeatureReviewBotEnabled bool    `envconfig:"FEATURE_REVIEW_BOT_ENABLED" default:"false"`
	TelegramBotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ReviewerIDsRaw          string  `envconfig:"REVIEWER_IDS"`
	ReviewerIDs             []int64 `envconfig:"-"` // заполним вручную
	ReviewerPasswordHash    string  `envconfig:"REVIEWER_PASSWORD_HASH"`
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Jobs ---
	JobExpirySchedule string `envconfig:"JOB_EXPIRY_SCHEDULE" default:"0 * * * *"`
	JobDigestSchedule string `envconfig:"JOB_DIGEST_SCHEDULE" default:"0 10 * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Minimums: минимальные суммы вывода по активам.
// Актив без минимума выводить нельзя.
func (c *Config) Minimums() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USDT": decimal.RequireFromString(c.WithdrawalMinUSDT),
		"WBTC": decimal.RequireFromString(c.WithdrawalMinWBTC),
	}
}

// TWDRates: курсы активов к TWD для оценки суммы вывода.
func (c *Config) TWDRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USDT": decimal.RequireFromString(c.RateUSDTTWD),
		"WBTC": decimal.RequireFromString(c.RateWBTCTWD),
	}
}

// ReferralBonus: размер реферального бонуса (каждой стороне).
func (c *Config) ReferralBonus() decimal.Decimal {
	return decimal.RequireFromString(c.ReferralBonusAmount)
}

// Validate проверяет значения, которые envconfig проверить не может.
// Денежные поля обязаны парситься, иначе Minimums/TWDRates упадут с паникой.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"WITHDRAWAL_MIN_USDT":   c.WithdrawalMinUSDT,
		"WITHDRAWAL_MIN_WBTC":   c.WithdrawalMinWBTC,
		"RATE_USDT_TWD":         c.RateUSDTTWD,
		"RATE_WBTC_TWD":         c.RateWBTCTWD,
		"REFERRAL_BONUS_AMOUNT": c.ReferralBonusAmount,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: некорректное число %q", name, raw)
		}
		if !d.IsPositive() {
			return fmt.Errorf("%s должен быть > 0", name)
		}
	}
	switch c.AppStorage {
	case "postgres":
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD не задан")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case "memory":
	default:
		return fmt.Errorf("APP_STORAGE должен быть postgres или memory, получено %q", c.AppStorage)
	}
	if c.ReviewSLAMinDays <= 0 || c.ReviewSLAMaxDays < c.ReviewSLAMinDays {
		return fmt.Errorf("некорректные REVIEW_SLA_MIN_DAYS/REVIEW_SLA_MAX_DAYS")
	}
	if c.ReviewExpiry < 0 {
		return fmt.Errorf("REVIEW_EXPIRY не может быть отрицательным")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.OTPMaxAttempts <= 0 || c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS и OTP_TTL должны быть > 0")
	}
	if c.FeatureReviewBotEnabled {
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN обязателен при FEATURE_REVIEW_BOT_ENABLED")
		}
		if len(c.ReviewerIDs) == 0 {
			return fmt.Errorf("REVIEWER_IDS обязателен при FEATURE_REVIEW_BOT_ENABLED")
		}
		if c.ReviewerPasswordHash == "" {
			return fmt.Errorf("REVIEWER_PASSWORD_HASH обязателен при FEATURE_REVIEW_BOT_ENABLED")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет Config.
func Load() (*Config, error) {
	// .env необязателен: в Docker переменные приходят из окружения
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.ReviewerIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("REVIEWER_IDS parse: %w", err)
	}
	cfg.ReviewerIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
