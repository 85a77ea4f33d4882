package bot

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
)

// Защита входа: 3 неудачные попытки = блокировка на 1 час, сессия живёт 24 часа.
const (
	maxLoginFailures = 3
	failureWindow    = time.Hour
	sessionTTL       = 24 * time.Hour
)

// Auth хранит сессии ревьюеров в памяти. После рестарта нужно войти заново.
type Auth struct {
	hash string
	now  func() time.Time

	mu       sync.Mutex
	failures map[int64][]time.Time
	sessions map[int64]time.Time // userID → истечение сессии
}

func NewAuth(passwordHash string) *Auth {
	return &Auth{
		hash:     passwordHash,
		now:      time.Now,
		failures: make(map[int64][]time.Time),
		sessions: make(map[int64]time.Time),
	}
}

// Login проверяет пароль (Argon2id) и открывает сессию.
func (a *Auth) Login(userID int64, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	recent := a.recentFailures(userID, now)
	if len(recent) >= maxLoginFailures {
		return common.ErrTooManyAttempts
	}

	if !common.VerifySecret(password, a.hash) {
		a.failures[userID] = append(recent, now)
		log.WithFields(log.Fields{
			"user_id":  userID,
			"failures": len(recent) + 1,
		}).Warn("Неудачная попытка входа ревьюера")
		return common.ErrWrongPassword
	}

	delete(a.failures, userID)
	a.sessions[userID] = now.Add(sessionTTL)
	log.WithField("user_id", userID).Info("Ревьюер вошёл")
	return nil
}

// HasSession: есть ли у пользователя живая сессия.
func (a *Auth) HasSession(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp, ok := a.sessions[userID]
	if !ok {
		return false
	}
	if !a.now().Before(exp) {
		delete(a.sessions, userID)
		return false
	}
	return true
}

func (a *Auth) Logout(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, userID)
}

func (a *Auth) recentFailures(userID int64, now time.Time) []time.Time {
	cutoff := now.Add(-failureWindow)
	var recent []time.Time
	for _, t := range a.failures[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}
