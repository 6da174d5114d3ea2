package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Link, error)
	// DeleteByID удаляет ссылку владельца и возвращает её короткий код
	DeleteByID(ctx context.Context, id, userID int64) (string, error)
	GetLinkIDByShortCode(ctx context.Context, code string) (int64, error)
	// LatestShortCode самый старший выданный код, "" если ссылок нет
	LatestShortCode(ctx context.Context) (string, error)
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (short_code, long_url, user_id, expires_at, created_at)
		VALUES ($1, $2, NULLIF($3::bigint, 0), $4, $5)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ShortCode,
		link.LongURL,
		link.UserID,
		link.ExpiresAt,
		link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `
		SELECT id, short_code, long_url, COALESCE(user_id, 0), expires_at, created_at
		FROM links
		WHERE short_code = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`

	link := &models.Link{}
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.LongURL,
		&link.UserID,
		&link.ExpiresAt,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) ListByUser(ctx context.Context, userID int64) ([]models.Link, error) {
	query := `
		SELECT id, short_code, long_url, COALESCE(user_id, 0), expires_at, created_at
		FROM links
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		var link models.Link
		if err := rows.Scan(
			&link.ID,
			&link.ShortCode,
			&link.LongURL,
			&link.UserID,
			&link.ExpiresAt,
			&link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) DeleteByID(ctx context.Context, id, userID int64) (string, error) {
	query := `DELETE FROM links WHERE id = $1 AND user_id = $2 RETURNING short_code`

	var code string
	err := r.db.Pool.QueryRow(ctx, query, id, userID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLinkNotFound
		}
		return "", fmt.Errorf("failed to delete link: %w", err)
	}

	return code, nil
}

func (r *linkRepository) GetLinkIDByShortCode(ctx context.Context, code string) (int64, error) {
	query := `SELECT id FROM links WHERE short_code = $1`

	var linkID int64
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(&linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLinkNotFound
		}
		return 0, fmt.Errorf("failed to get link ID: %w", err)
	}

	return linkID, nil
}

// Алфавит Base62 упорядочен как ASCII, поэтому для канонических кодов
// порядок "длина, затем байты" совпадает с числовым.
func (r *linkRepository) LatestShortCode(ctx context.Context) (string, error) {
	query := `
		SELECT short_code
		FROM links
		ORDER BY length(short_code) DESC, short_code COLLATE "C" DESC
		LIMIT 1
	`

	var code string
	err := r.db.Pool.QueryRow(ctx, query).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get latest short code: %w", err)
	}

	return code, nil
}
