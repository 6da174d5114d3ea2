// Package sequence выдаёт строго возрастающие уникальные идентификаторы для коротких ссылок.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// DefaultStart стартовое смещение: первые коды сразу двухсимвольные ("G8")
const DefaultStart = 1000

// ErrUnavailable централизованный счётчик недоступен (хранилище, конкуренция, переполнение)
var ErrUnavailable = errors.New("sequence unavailable")

// Sequence источник идентификаторов. Два вызова Next никогда не возвращают одно значение.
type Sequence interface {
	Next(ctx context.Context) (*big.Int, error)
}

// RangeReserver атомарно резервирует size идентификаторов в общем хранилище
// и возвращает первый из них. Реализуется слоем хранения.
type RangeReserver interface {
	Reserve(ctx context.Context, size uint64) (*big.Int, error)
}

// ParseStart разбирает десятичное стартовое значение произвольной величины.
func ParseStart(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(DefaultStart), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid sequence start %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("sequence start must be non-negative, got %s", s)
	}
	return n, nil
}
