// Package common: secret.go отвечает за хеширование секретов Argon2id и генерацию
// случайных кодов. Используется для OTP привязки кошелька и пароля ревьюеров.
package common

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id для одноразовых кодов (OTP).
const (
	otpMemory      uint32 = 16 * 1024
	otpIterations  uint32 = 1
	otpParallelism uint8  = 1
	hashKeyLength  uint32 = 32
	saltLength            = 16
)

// HashSecret возвращает хеш Argon2id в стандартном формате
// $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, otpIterations, otpMemory, otpParallelism, hashKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, otpMemory, otpIterations, otpParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifySecret проверяет секрет по хешу Argon2id.
// Параметры берутся из самого хеша, поэтому подходят и хеши из scripts/generate_hash.go.
func VerifySecret(secret, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	// сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// RandomString возвращает n символов из alphabet (crypto/rand).
func RandomString(n int, alphabet string) (string, error) {
	size := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации случайной строки: %w", err)
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// RandomDigits: одноразовый код из n цифр.
func RandomDigits(n int) (string, error) {
	return RandomString(n, "0123456789")
}

// SecureToken генерирует случайный токен сессии.
func SecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
