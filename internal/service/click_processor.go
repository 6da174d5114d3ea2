package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
)

// ClickProcessor асинхронно записывает переходы по коротким ссылкам
type ClickProcessor interface {
	Start()
	Stop()
	RecordClick(ctx context.Context, event *models.ClickEvent) error
	GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error)
	GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error)
}

// clickProcessor реализация процессора кликов с использованием Worker Pool
type clickProcessor struct {
	clickRepo    repository.ClickRepository
	linkRepo     repository.LinkRepository
	logger       *zap.Logger
	clickChannel chan *models.ClickEvent
	workerCount  int
	retryDelay   time.Duration
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewClickProcessor(
	clickRepo repository.ClickRepository,
	linkRepo repository.LinkRepository,
	logger *zap.Logger,
) ClickProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clickProcessor{
		clickRepo:    clickRepo,
		linkRepo:     linkRepo,
		logger:       logger,
		clickChannel: make(chan *models.ClickEvent, defaultChannelBuffer),
		workerCount:  defaultWorkerCount,
		retryDelay:   100 * time.Millisecond,
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop останавливает воркеры и ждёт их завершения. Необработанные события теряются.
func (p *clickProcessor) Stop() {
	if p.cancel == nil {
		return
	}
	p.logger.Info("Остановка процессора кликов...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Процессор кликов остановлен")
}

func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
			return

		case event := <-p.clickChannel:
			p.processClick(event)
		}
	}
}

// processClick записывает один клик, повторяя запись при ошибках БД
func (p *clickProcessor) processClick(event *models.ClickEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	linkID, err := p.linkRepo.GetLinkIDByShortCode(ctx, event.ShortCode)
	if err != nil {
		p.logger.Warn("Не удалось получить ID ссылки для клика",
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
		return
	}

	click := &models.Click{
		LinkID:    linkID,
		ShortCode: event.ShortCode,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Referer:   event.Referer,
		ClickedAt: time.Now(),
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = p.clickRepo.RecordClick(ctx, click); err == nil {
			return
		}
		if attempt == maxRetries {
			break
		}
		p.logger.Debug("Повторная попытка записи клика",
			zap.String("short_code", event.ShortCode),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = maxRetries
		case <-time.After(time.Duration(attempt) * p.retryDelay):
		}
	}

	p.logger.Error("Не удалось записать клик после всех попыток",
		zap.String("short_code", event.ShortCode),
		zap.Error(err),
	)
}

// RecordClick ставит событие в очередь не блокируя запрос; при полном буфере событие теряется
func (p *clickProcessor) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.clickChannel <- event:
		return nil
	default:
		metrics.ClicksDropped.Inc()
		p.logger.Warn("Буфер канала кликов заполнен, событие потеряно",
			zap.String("short_code", event.ShortCode),
		)
		return nil
	}
}

func (p *clickProcessor) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	return p.clickRepo.GetStats(ctx, shortCode)
}

func (p *clickProcessor) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	return p.clickRepo.GetDailyStats(ctx, shortCode, days)
}
