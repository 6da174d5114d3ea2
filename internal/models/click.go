package models

import (
	"time"
)

type Click struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"linkId"`
	ShortCode string    `json:"shortCode"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Referer   string    `json:"referer"`
	ClickedAt time.Time `json:"clickedAt"`
}

type ClickEvent struct {
	ShortCode string
	IPAddress string
	UserAgent string
	Referer   string
}

type ClickStats struct {
	ShortCode    string `json:"shortCode"`
	TotalClicks  int64  `json:"totalClicks"`
	UniqueClicks int64  `json:"uniqueClicks"`
}

type DailyClickStats struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}
