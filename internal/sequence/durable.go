package sequence

import (
	"context"
	"fmt"
	"math/big"
)

// HighWaterMark хранит границу, ниже которой все значения уже выданы.
// Граница только растёт: удаление ссылок её не опускает.
type HighWaterMark interface {
	// Load возвращает сохранённую границу или nil, если её ещё нет
	Load(ctx context.Context) (*big.Int, error)
	// Advance поднимает границу до next, меньшие значения игнорируются
	Advance(ctx context.Context, next *big.Int) error
}

// Durable счётчик в памяти, каждое выданное значение которого зафиксировано в mark.
// После рестарта продолжает с сохранённой границы, поэтому коды не выдаются повторно.
// Как и Memory, корректен только для одного экземпляра сервиса.
type Durable struct {
	mem  *Memory
	mark HighWaterMark
}

// NewDurable стартует с наибольшего из floor и сохранённой границы.
func NewDurable(ctx context.Context, mark HighWaterMark, floor *big.Int) (*Durable, error) {
	start := new(big.Int)
	if floor != nil && floor.Sign() > 0 {
		start.Set(floor)
	}

	stored, err := mark.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load high-water mark: %w", ErrUnavailable, err)
	}
	if stored != nil && stored.Cmp(start) > 0 {
		start.Set(stored)
	}

	return &Durable{mem: NewMemory(start), mark: mark}, nil
}

// Next выдаёт значение только после того, как граница сохранена.
// При ошибке записи значение пропускается (пропуски допустимы), но не возвращается.
func (d *Durable) Next(ctx context.Context) (*big.Int, error) {
	id, _ := d.mem.Next(ctx)

	next := new(big.Int).Add(id, one)
	if err := d.mark.Advance(ctx, next); err != nil {
		return nil, fmt.Errorf("%w: persist high-water mark %s: %w", ErrUnavailable, next, err)
	}
	return id, nil
}

// Peek значение, которое вернёт следующий Next
func (d *Durable) Peek() *big.Int {
	return d.mem.Peek()
}
