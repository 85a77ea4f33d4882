package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejection(t *testing.T) {
	err := Reject(ErrBelowMinimum, "minimum", "10", "asset", "USDT")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.Equal(t, "сумма меньше минимальной для вывода (asset=USDT, minimum=10)", err.Error())
	assert.Equal(t, map[string]string{"minimum": "10", "asset": "USDT"}, DetailsOf(err))

	wrapped := fmt.Errorf("вывод: %w", err)
	assert.Equal(t, "BELOW_MINIMUM", Code(wrapped))
	assert.True(t, IsRejection(wrapped))
	assert.Equal(t, "10", DetailsOf(wrapped)["minimum"])

	assert.Equal(t, ErrBelowMinimum.Error(), Reject(ErrBelowMinimum).Error())
}

func TestCodeAndIsRejection(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "INTERNAL", Code(errors.New("connection refused")))
	assert.False(t, IsRejection(errors.New("connection refused")))
	assert.False(t, IsRejection(ErrLedgerMismatch))
	assert.Equal(t, "LEDGER_MISMATCH", Code(ErrLedgerMismatch))
	assert.True(t, IsRejection(ErrAlreadyClaimedToday))
	assert.Nil(t, DetailsOf(ErrAlreadyClaimedToday))
}

func TestDates(t *testing.T) {
	loc := Location()
	late := time.Date(2025, time.March, 3, 23, 59, 0, 0, loc)
	early := time.Date(2025, time.March, 4, 0, 1, 0, 0, loc)

	assert.False(t, SameDate(late, early))
	assert.Equal(t, 1, DaysBetween(late, early))
	assert.Equal(t, -1, DaysBetween(early, late))
	assert.Equal(t, 0, DaysBetween(early, early.Add(time.Hour)))
	assert.Equal(t, 31, DaysBetween(late, late.AddDate(0, 1, 0)))

	// в UTC это ещё 3 марта, а в опорном поясе уже 4-е
	utc := time.Date(2025, time.March, 3, 17, 0, 0, 0, time.UTC)
	assert.True(t, SameDate(utc, early))
	assert.Equal(t, "2025-03-04", FormatDate(utc))
}

func TestAddBusinessDays(t *testing.T) {
	fri := time.Date(2025, time.March, 7, 12, 0, 0, 0, Location())
	assert.Equal(t, "2025-03-10", FormatDate(AddBusinessDays(fri, 1)))
	assert.Equal(t, "2025-03-14", FormatDate(AddBusinessDays(fri, 5)))
	assert.Equal(t, "2025-03-07", FormatDate(AddBusinessDays(fri, 0)))
}

func TestSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("123456")
	require.NoError(t, err)
	assert.True(t, VerifySecret("123456", hash))
	assert.False(t, VerifySecret("654321", hash))
	assert.False(t, VerifySecret("123456", "not-a-hash"))

	other, err := HashSecret("123456")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "соль случайная")
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(6, "AB")
	require.NoError(t, err)
	assert.Regexp(t, "^[AB]{6}$", s)

	d, err := RandomDigits(6)
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9]{6}$", d)

	tok, err := SecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}
