package sequence

import (
	"context"
	"math/big"
	"sync"
)

var one = big.NewInt(1)

// Memory счётчик в памяти процесса. Корректен только для одного экземпляра сервиса.
type Memory struct {
	mu   sync.Mutex
	next *big.Int
}

// NewMemory создаёт счётчик, первый вызов Next вернёт start.
func NewMemory(start *big.Int) *Memory {
	next := new(big.Int)
	if start != nil && start.Sign() > 0 {
		next.Set(start)
	}
	return &Memory{next: next}
}

// Next возвращает текущее значение и сдвигает счётчик на 1.
func (m *Memory) Next(_ context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := new(big.Int).Set(m.next)
	m.next.Add(m.next, one)
	return id, nil
}

// Peek значение, которое вернёт следующий Next
func (m *Memory) Peek() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.next)
}
