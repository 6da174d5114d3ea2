package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// LinkSequenceName имя счётчика коротких ссылок
const LinkSequenceName = "links"

var errBlockTooLarge = errors.New("block size exceeds int64")

// PostgresCounter резервирует диапазоны в таблице id_sequences.
// next_value хранится как NUMERIC, поэтому счётчик не ограничен 64 битами.
type PostgresCounter struct {
	db    *PostgresDB
	name  string
	start *big.Int
}

var _ sequence.RangeReserver = (*PostgresCounter)(nil)

// NewPostgresCounter start используется только при первом резервировании,
// когда строки счётчика ещё нет.
func NewPostgresCounter(db *PostgresDB, name string, start *big.Int) *PostgresCounter {
	if start == nil {
		start = big.NewInt(sequence.DefaultStart)
	}
	return &PostgresCounter{db: db, name: name, start: new(big.Int).Set(start)}
}

func (c *PostgresCounter) Reserve(ctx context.Context, size uint64) (*big.Int, error) {
	if size > math.MaxInt64 {
		return nil, errBlockTooLarge
	}

	// Строка блокируется до конца оператора, параллельные резервирования сериализуются
	query := `
		INSERT INTO id_sequences (name, next_value)
		VALUES ($1, $2::text::numeric + $3::bigint)
		ON CONFLICT (name) DO UPDATE
			SET next_value = id_sequences.next_value + $3::bigint
		RETURNING (next_value - $3::bigint)::text
	`

	var raw string
	err := c.db.Pool.QueryRow(ctx, query, c.name, c.start.String(), int64(size)).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve ids: %w", err)
	}

	start, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("unexpected counter value %q", raw)
	}
	return start, nil
}

var _ sequence.HighWaterMark = (*PostgresCounter)(nil)

// Load текущее значение счётчика, nil если строки ещё нет
func (c *PostgresCounter) Load(ctx context.Context) (*big.Int, error) {
	query := `SELECT next_value::text FROM id_sequences WHERE name = $1`

	var raw string
	err := c.db.Pool.QueryRow(ctx, query, c.name).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load counter: %w", err)
	}

	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("unexpected counter value %q", raw)
	}
	return n, nil
}

// Advance поднимает счётчик до next; GREATEST не даёт ему опуститься
func (c *PostgresCounter) Advance(ctx context.Context, next *big.Int) error {
	query := `
		INSERT INTO id_sequences (name, next_value)
		VALUES ($1, $2::text::numeric)
		ON CONFLICT (name) DO UPDATE
			SET next_value = GREATEST(id_sequences.next_value, EXCLUDED.next_value)
	`

	if _, err := c.db.Pool.Exec(ctx, query, c.name, next.String()); err != nil {
		return fmt.Errorf("failed to advance counter: %w", err)
	}
	return nil
}

// reserveScript инициализирует ключ стартовым значением и сдвигает его на размер блока.
// INCRBY сам отвергает переполнение int64.
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('SET', KEYS[1], ARGV[1])
end
return redis.call('INCRBY', KEYS[1], ARGV[2])
`)

// RedisCounter резервирует диапазоны через INCRBY. Ограничен диапазоном int64.
type RedisCounter struct {
	redis *RedisDB
	key   string
	start int64
}

var _ sequence.RangeReserver = (*RedisCounter)(nil)

func NewRedisCounter(redis *RedisDB, name string, start *big.Int) (*RedisCounter, error) {
	if start == nil {
		start = big.NewInt(sequence.DefaultStart)
	}
	if !start.IsInt64() {
		return nil, fmt.Errorf("redis counter start %s does not fit int64", start)
	}
	return &RedisCounter{redis: redis, key: "seq:" + name, start: start.Int64()}, nil
}

func (c *RedisCounter) Reserve(ctx context.Context, size uint64) (*big.Int, error) {
	if size > math.MaxInt64 {
		return nil, errBlockTooLarge
	}

	end, err := reserveScript.Run(ctx, c.redis.Client, []string{c.key}, c.start, int64(size)).Int64()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve ids: %w", err)
	}

	start := big.NewInt(end)
	return start.Sub(start, new(big.Int).SetUint64(size)), nil
}
