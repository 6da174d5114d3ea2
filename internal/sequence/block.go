package sequence

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// DefaultBlockSize размер диапазона, резервируемого за одно обращение к хранилищу
const DefaultBlockSize = 50

// Block раздаёт идентификаторы из диапазонов, зарезервированных в общем хранилище.
// Несколько экземпляров сервиса получают непересекающиеся диапазоны,
// поэтому значения уникальны глобально и возрастают в пределах экземпляра.
// Неиспользованный остаток диапазона при рестарте теряется (пропуски допустимы).
type Block struct {
	reserver RangeReserver
	size     uint64

	mu        sync.Mutex
	next      *big.Int
	remaining uint64
}

// NewBlock создаёт последовательность поверх reserver.
func NewBlock(reserver RangeReserver, size uint64) *Block {
	if size == 0 {
		size = DefaultBlockSize
	}
	return &Block{
		reserver: reserver,
		size:     size,
		next:     new(big.Int),
	}
}

// Next выдаёт следующий идентификатор, при исчерпании диапазона резервирует новый.
func (b *Block) Next(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remaining == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start, err := b.reserver.Reserve(ctx, b.size)
		if err != nil {
			return nil, fmt.Errorf("%w: reserve %d ids: %w", ErrUnavailable, b.size, err)
		}
		if start == nil || start.Sign() < 0 {
			return nil, fmt.Errorf("%w: reserver returned invalid range start %v", ErrUnavailable, start)
		}
		b.next.Set(start)
		b.remaining = b.size
	}

	id := new(big.Int).Set(b.next)
	b.next.Add(b.next, one)
	b.remaining--
	return id, nil
}
