package models

import (
	"time"
)

// Link связь короткого кода с исходным URL
type Link struct {
	ID        int64      `json:"id"`
	ShortCode string     `json:"shortCode"`
	LongURL   string     `json:"longUrl"`
	UserID    int64      `json:"userId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Expired true, если срок жизни ссылки истёк к моменту now
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

type CreateLinkInput struct {
	LongURL   string
	UserID    int64
	ExpiresIn *int // минуты
}
