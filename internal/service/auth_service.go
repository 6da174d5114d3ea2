package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrInvalidUsername    = errors.New("имя пользователя должно быть от 3 до 32 символов")
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	ErrUserExists         = repository.ErrUserExists
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
)

// AuthResult пользователь и выпущенный для него токен
type AuthResult struct {
	User  *models.User
	Token string
}

type AuthService interface {
	// Register password уже декодирован из транспортного формата
	Register(ctx context.Context, username, password string) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
}

type authService struct {
	users    repository.UserRepository
	tokens   auth.TokenService
	hasher   *auth.PasswordHasher
	security *zap.Logger
}

// NewAuthService logger получает попытки входа и регистрации
func NewAuthService(
	users repository.UserRepository,
	tokens auth.TokenService,
	hasher *auth.PasswordHasher,
	logger *zap.Logger,
) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		security: logger.Named("security"),
	}
}

func (s *authService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			s.security.Info("Registration with taken username", zap.String("username", username))
		}
		return nil, err
	}

	s.security.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", username))
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.security.Warn("Login failed: unknown user", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.security.Warn("Login failed: wrong password", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	s.security.Info("User logged in", zap.Int64("user_id", user.ID))
	return s.issue(user)
}

func (s *authService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Sign(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	return username, nil
}
