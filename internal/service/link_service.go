package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink/internal/codec"
	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/SergeiKhy/shortlink/internal/sequence"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Ошибки сервиса
var (
	ErrInvalidURL    = errors.New("невалидный URL")
	ErrSpamDomain    = errors.New("домен в чёрном списке")
	ErrInvalidCode   = errors.New("невалидный короткий код")
	ErrCodeCollision = errors.New("выданный код уже занят")
	ErrLinkNotFound  = repository.ErrLinkNotFound
)

// Константы сервиса
const (
	defaultCacheTTL = 24 * time.Hour
	maxTTL          = 30 * 24 * time.Hour
	maxURLLength    = 2048
	lookupTimeout   = 5 * time.Second // общий поиск ссылки в БД
)

// Чёрный список доменов, поддомены тоже блокируются
var blacklistedDomains = []string{
	"malware.com",
	"phishing.com",
	"spam.com",
}

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	ListUserLinks(ctx context.Context, userID int64) ([]models.Link, error)
	DeleteLink(ctx context.Context, id, userID int64) error
}

type LinkOption func(*linkService)

// WithCacheTTL время жизни записи в кеше для бессрочных ссылок
func WithCacheTTL(ttl time.Duration) LinkOption {
	return func(s *linkService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

type linkService struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	seq       sequence.Sequence
	logger    *zap.Logger
	cacheTTL  time.Duration
	lookups   singleflight.Group
}

// NewLinkService создаёт сервис. Коды выдаются только из seq:
// уникальность кода следует из уникальности идентификатора.
func NewLinkService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	seq sequence.Sequence,
	logger *zap.Logger,
	opts ...LinkOption,
) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &linkService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		seq:       seq,
		logger:    logger,
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLink выдаёт следующий идентификатор, кодирует его в Base62 и сохраняет ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	longURL := strings.TrimSpace(input.LongURL)
	if err := validateURL(longURL); err != nil {
		return nil, err
	}

	id, err := s.seq.Next(ctx)
	if err != nil {
		metrics.SequenceErrors.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("failed to issue id: %w", err)
	}

	code, err := codec.Encode(id)
	if err != nil {
		return nil, fmt.Errorf("failed to encode id %s: %w", id, err)
	}

	now := time.Now()
	var expiresAt *time.Time
	if input.ExpiresIn != nil && *input.ExpiresIn > 0 {
		ttl := time.Duration(*input.ExpiresIn) * time.Minute
		if ttl > maxTTL {
			ttl = maxTTL
		}
		t := now.Add(ttl)
		expiresAt = &t
	}

	link := &models.Link{
		ShortCode: code,
		LongURL:   longURL,
		UserID:    input.UserID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			// Последовательность выдала уже занятое значение: повтор здесь ничего не исправит
			metrics.SequenceErrors.WithLabelValues("collision").Inc()
			s.logger.Error("Issued short code already exists",
				zap.String("short_code", code),
				zap.String("id", id.String()),
			)
			return nil, ErrCodeCollision
		}
		return nil, err
	}
	metrics.LinksIssued.Inc()

	s.cache(ctx, link)

	return link, nil
}

// GetLink ищет ссылку по коду: сначала кеш, затем БД.
// Одновременные промахи по одному коду порождают один запрос к БД.
func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	if err := codec.Validate(code); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCode, err)
	}

	link, err := s.cacheRepo.Get(ctx, code)
	if err == nil {
		if !link.Expired(time.Now()) {
			return link, nil
		}
		return nil, ErrLinkNotFound
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Debug("Cache lookup failed", zap.String("short_code", code), zap.Error(err))
	}

	// Запрос общий для всех ожидающих, поэтому не зависит от отмены запроса,
	// который его начал. Каждый вызывающий ждёт не дольше своего ctx.
	ch := s.lookups.DoChan(code, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		link, err := s.linkRepo.GetByShortCode(lookupCtx, code)
		if err != nil {
			return nil, err
		}
		s.cache(lookupCtx, link)
		return link, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// результат общий для всех ожидавших, каждому своя копия
		found := *res.Val.(*models.Link)
		return &found, nil
	}
}

func (s *linkService) ListUserLinks(ctx context.Context, userID int64) ([]models.Link, error) {
	return s.linkRepo.ListByUser(ctx, userID)
}

// DeleteLink удаляет ссылку владельца и сбрасывает её из кеша
func (s *linkService) DeleteLink(ctx context.Context, id, userID int64) error {
	code, err := s.linkRepo.DeleteByID(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.cacheRepo.Delete(ctx, code); err != nil {
		s.logger.Warn("Failed to evict deleted link from cache",
			zap.String("short_code", code),
			zap.Error(err),
		)
	}
	return nil
}

// cache ошибки кеша не мешают основной операции
func (s *linkService) cache(ctx context.Context, link *models.Link) {
	ttl := s.ttlFor(link)
	if ttl <= 0 {
		// для Redis нулевой TTL означает бессрочную запись
		return
	}
	if err := s.cacheRepo.Set(ctx, link.ShortCode, link, ttl); err != nil {
		s.logger.Warn("Failed to cache link",
			zap.String("short_code", link.ShortCode),
			zap.Error(err),
		)
	}
}

// ttlFor запись в кеше не переживает саму ссылку
func (s *linkService) ttlFor(link *models.Link) time.Duration {
	ttl := s.cacheTTL
	if link.ExpiresAt != nil {
		if until := time.Until(*link.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	return ttl
}

// validateURL принимает только абсолютные http(s) URL с хостом
func validateURL(raw string) error {
	if raw == "" || len(raw) > maxURLLength {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Hostname() == "" {
		return ErrInvalidURL
	}
	return checkSpamDomain(u.Hostname())
}

// checkSpamDomain проверяет хост и его родительские домены по чёрному списку
func checkSpamDomain(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, domain := range blacklistedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return ErrSpamDomain
		}
	}
	return nil
}
