package repository

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/shortlink/internal/models"
)

type ClickRepository interface {
	RecordClick(ctx context.Context, click *models.Click) error
	GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

func (r *clickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	query := `
		INSERT INTO clicks (link_id, ip_address, user_agent, referer, clicked_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		click.LinkID,
		click.IPAddress,
		click.UserAgent,
		click.Referer,
		click.ClickedAt,
	).Scan(&click.ID)

	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	return nil
}

func (r *clickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_clicks,
			COUNT(DISTINCT ip_address) AS unique_clicks
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE l.short_code = $1
	`

	stats := &models.ClickStats{
		ShortCode: shortCode,
	}

	err := r.db.Pool.QueryRow(ctx, query, shortCode).Scan(
		&stats.TotalClicks,
		&stats.UniqueClicks,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get click stats: %w", err)
	}

	return stats, nil
}

func (r *clickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	query := `
		SELECT
			TO_CHAR(DATE(c.clicked_at), 'YYYY-MM-DD') AS day,
			COUNT(*) AS clicks
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE l.short_code = $1
			AND c.clicked_at >= NOW() - INTERVAL '1 day' * $2::int
		GROUP BY DATE(c.clicked_at)
		ORDER BY DATE(c.clicked_at) DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, shortCode, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyClickStats{}
	for rows.Next() {
		var dailyStat models.DailyClickStats
		if err := rows.Scan(&dailyStat.Date, &dailyStat.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, dailyStat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	return stats, nil
}
