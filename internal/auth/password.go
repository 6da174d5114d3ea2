package auth

import (
	"encoding/base64"
	"errors"
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Границы длины пароля после декодирования. bcrypt не принимает больше 72 байт.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var (
	ErrPasswordFormat   = errors.New("password must be base64 encoded")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
)

var base64Shape = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// DecodeTransitPassword декодирует пароль, который веб-клиент передаёт в base64.
func DecodeTransitPassword(encoded string) (string, error) {
	if len(encoded)%4 != 0 || !base64Shape.MatchString(encoded) {
		return "", ErrPasswordFormat
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return "", ErrPasswordFormat
	}

	if utf8.RuneCount(raw) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(raw) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	return string(raw), nil
}

type PasswordHasher struct {
	cost int
}

// NewPasswordHasher cost вне допустимого диапазона bcrypt заменяется на bcrypt.DefaultCost
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify false при несовпадении или повреждённом хеше
func (h *PasswordHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
