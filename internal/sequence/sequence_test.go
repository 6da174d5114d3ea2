package sequence_test

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReserver имитирует централизованный счётчик в хранилище
type fakeReserver struct {
	mu    sync.Mutex
	next  *big.Int
	calls int
	err   error
}

func newFakeReserver(start int64) *fakeReserver {
	return &fakeReserver{next: big.NewInt(start)}
}

func (f *fakeReserver) Reserve(ctx context.Context, size uint64) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := new(big.Int).Set(f.next)
	f.next.Add(f.next, new(big.Int).SetUint64(size))
	return start, nil
}

func TestMemory_StartsAtOffset(t *testing.T) {
	seq := sequence.NewMemory(big.NewInt(sequence.DefaultStart))
	ctx := context.Background()

	for _, want := range []int64{1000, 1001, 1002} {
		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.Int64())
	}
	assert.Equal(t, int64(1003), seq.Peek().Int64())
}

func TestMemory_NilStartIsZero(t *testing.T) {
	seq := sequence.NewMemory(nil)
	got, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int64())
}

func TestMemory_ReturnedValuesAreIndependent(t *testing.T) {
	seq := sequence.NewMemory(big.NewInt(5))
	first, _ := seq.Next(context.Background())
	first.SetInt64(100)

	second, _ := seq.Next(context.Background())
	assert.Equal(t, int64(6), second.Int64())
}

func TestMemory_NoWrapBeyondUint64(t *testing.T) {
	start := new(big.Int).SetUint64(^uint64(0))
	seq := sequence.NewMemory(start)

	a, _ := seq.Next(context.Background())
	b, _ := seq.Next(context.Background())
	assert.Equal(t, 0, a.Cmp(start))
	assert.Equal(t, 1, b.Cmp(a))
	assert.False(t, b.IsUint64())
}

func TestMemory_ConcurrentUniqueness(t *testing.T) {
	assertConcurrentContiguous(t, sequence.NewMemory(big.NewInt(1000)), 1000)
}

func TestBlock_ContiguousAcrossBlocks(t *testing.T) {
	reserver := newFakeReserver(1000)
	seq := sequence.NewBlock(reserver, 3)
	ctx := context.Background()

	for want := int64(1000); want < 1010; want++ {
		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.Int64())
	}
	// 10 значений при блоке 3 = 4 резервирования
	assert.Equal(t, 4, reserver.calls)
}

func TestBlock_ConcurrentUniqueness(t *testing.T) {
	assertConcurrentContiguous(t, sequence.NewBlock(newFakeReserver(1000), 7), 1000)
}

func TestBlock_TwoInstancesNeverOverlap(t *testing.T) {
	reserver := newFakeReserver(1000)
	a := sequence.NewBlock(reserver, 5)
	b := sequence.NewBlock(reserver, 5)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		for _, seq := range []*sequence.Block{a, b} {
			id, err := seq.Next(ctx)
			require.NoError(t, err)
			require.False(t, seen[id.String()], "дубликат %s", id)
			seen[id.String()] = true
		}
	}
	assert.Len(t, seen, 200)
}

func TestBlock_ReserveErrorIsUnavailable(t *testing.T) {
	reserver := newFakeReserver(1000)
	storeErr := errors.New("connection refused")
	reserver.err = storeErr
	seq := sequence.NewBlock(reserver, 2)

	_, err := seq.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sequence.ErrUnavailable)
	assert.ErrorIs(t, err, storeErr)

	// после восстановления хранилища выдача продолжается без дубликатов
	reserver.err = nil
	got, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Int64())
}

func TestBlock_CanceledContext(t *testing.T) {
	reserver := newFakeReserver(1000)
	seq := sequence.NewBlock(reserver, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seq.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, reserver.calls)
}

func TestBlock_DefaultSize(t *testing.T) {
	reserver := newFakeReserver(0)
	seq := sequence.NewBlock(reserver, 0)
	for i := 0; i < sequence.DefaultBlockSize; i++ {
		_, err := seq.Next(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reserver.calls)
}

func TestParseStart(t *testing.T) {
	n, err := sequence.ParseStart("")
	require.NoError(t, err)
	assert.Equal(t, int64(sequence.DefaultStart), n.Int64())

	n, err = sequence.ParseStart("340282366920938463463374607431768211456")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211456", n.String())

	_, err = sequence.ParseStart("-1")
	assert.Error(t, err)
	_, err = sequence.ParseStart("1e3")
	assert.Error(t, err)
}

// assertConcurrentContiguous: K горутин по M вызовов дают K*M различных значений подряд от start
func assertConcurrentContiguous(t *testing.T, seq sequence.Sequence, start int64) {
	t.Helper()
	const (
		workers = 16
		perWork = 500
	)

	results := make(chan int64, workers*perWork)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				id, err := seq.Next(context.Background())
				if !assert.NoError(t, err) {
					return
				}
				results <- id.Int64()
			}
		}()
	}
	wg.Wait()
	close(results)

	ids := make([]int64, 0, workers*perWork)
	for id := range results {
		ids = append(ids, id)
	}
	require.Len(t, ids, workers*perWork)

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		require.Equal(t, start+int64(i), id, "дубликат или пропуск на позиции %d", i)
	}
}
