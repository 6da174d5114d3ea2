// Package auth выпускает и проверяет токены доступа и хеширует пароли.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken подпись, издатель, срок или формат токена не прошли проверку
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID   int64
	Username string
}

type jwtClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Sign(userID int64, username string) (string, error)
	Verify(token string) (Claims, error)
}

type hs256Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be > 0")
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

func (h *hs256Service) Sign(userID int64, username string) (string, error) {
	if userID <= 0 {
		return "", errors.New("empty user id")
	}
	now := time.Now()

	claims := jwtClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(h.secret)
}

func (h *hs256Service) Verify(tokenString string) (Claims, error) {
	var parsed jwtClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &parsed, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Claims{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, parsed.Subject)
	}
	return Claims{
		UserID:   userID,
		Username: parsed.Username,
	}, nil
}
