package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link
	nextID int64
	gets   int

	// Err если задан, возвращается всеми методами
	Err error
	// Delay задержка GetByShortCode, прерывается отменой ctx
	Delay time.Duration
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	stored := *link
	m.links[link.ShortCode] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	m.gets++
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.links[code]
	if !exists || link.Expired(time.Now()) {
		return nil, repository.ErrLinkNotFound
	}
	found := *link
	return &found, nil
}

func (m *MockLinkRepository) ListByUser(ctx context.Context, userID int64) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	links := []models.Link{}
	for _, link := range m.links {
		if link.UserID == userID {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID > links[j].ID })
	return links, nil
}

func (m *MockLinkRepository) DeleteByID(ctx context.Context, id, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	for code, link := range m.links {
		if link.ID == id && link.UserID == userID {
			delete(m.links, code)
			return code, nil
		}
	}
	return "", repository.ErrLinkNotFound
}

func (m *MockLinkRepository) GetLinkIDByShortCode(ctx context.Context, code string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return 0, repository.ErrLinkNotFound
	}
	return link.ID, nil
}

// LatestShortCode порядок "длина, затем байты" как в PostgreSQL-реализации
func (m *MockLinkRepository) LatestShortCode(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := ""
	for code := range m.links {
		if len(code) > len(latest) || (len(code) == len(latest) && code > latest) {
			latest = code
		}
	}
	return latest, nil
}

// Put кладёт ссылку напрямую, минуя выдачу кода
func (m *MockLinkRepository) Put(link *models.Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link.ID == 0 {
		link.ID = m.nextID
		m.nextID++
	}
	stored := *link
	m.links[link.ShortCode] = &stored
}

// Gets число обращений к GetByShortCode
func (m *MockLinkRepository) Gets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.nextID = 1
	m.gets = 0
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]models.Link
	ttls  map[string]time.Duration

	// Err если задан, возвращается из Set и Delete
	Err error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]models.Link),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[key]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	return &link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.cache[key] = *link
	m.ttls[key] = ttl
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.cache, key)
	delete(m.ttls, key)
	return nil
}

// TTL время жизни, с которым был записан ключ
func (m *MockCacheRepository) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttls[key]
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]models.Link)
	m.ttls = make(map[string]time.Duration)
}

// MockClickRepository implements repository.ClickRepository for testing
type MockClickRepository struct {
	mu     sync.RWMutex
	clicks []*models.Click
	fails  int

	// Err возвращается из RecordClick первые FailTimes вызовов
	Err       error
	FailTimes int
}

func NewMockClickRepository() *MockClickRepository {
	return &MockClickRepository{}
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil && m.fails < m.FailTimes {
		m.fails++
		return m.Err
	}
	m.clicks = append(m.clicks, click)
	return nil
}

func (m *MockClickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalClicks int64
	uniqueIPs := make(map[string]bool)
	for _, click := range m.clicks {
		if click.ShortCode == shortCode {
			totalClicks++
			uniqueIPs[click.IPAddress] = true
		}
	}

	return &models.ClickStats{
		ShortCode:    shortCode,
		TotalClicks:  totalClicks,
		UniqueClicks: int64(len(uniqueIPs)),
	}, nil
}

func (m *MockClickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().AddDate(0, 0, -days)
	perDay := make(map[string]int64)
	for _, click := range m.clicks {
		if click.ShortCode == shortCode && click.ClickedAt.After(since) {
			perDay[click.ClickedAt.Format("2006-01-02")]++
		}
	}

	stats := []models.DailyClickStats{}
	for day, n := range perDay {
		stats = append(stats, models.DailyClickStats{Date: day, Clicks: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
	return stats, nil
}

// Count число записанных кликов
func (m *MockClickRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clicks)
}

func (m *MockClickRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = nil
	m.fails = 0
}

// MockUserRepository implements repository.UserRepository for testing
type MockUserRepository struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	nextID int64
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[string]*models.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return repository.ErrUserExists
	}
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.nextID++
	stored := *user
	m.users[user.Username] = &stored
	return nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[username]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	found := *user
	return &found, nil
}
