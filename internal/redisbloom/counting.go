package redisbloom

import (
	"fmt"
	"math"

	"github.com/gomodule/redigo/redis"

	"bloomsketch/internal/bloom"
)

// CountingFilter is the Redis-backed counting Bloom filter. The bit array
// lives under <name>:bits, the counters under <name>:counts. Adds run inside
// one optimistic transaction; removes use a two-phase protocol so counter
// decrements are never lost while bit clears stay consistent with the
// observed counter state. Multiple processes may operate on the same dataset.
type CountingFilter struct {
	config   *bloom.FilterBuilder
	keys     KeySet
	pool     *Pool
	bits     *BitSet
	expireAt int64
}

// NewCountingFilter completes the configuration, connects the pool, persists
// or verifies the dataset's configuration snapshot and attaches to its keys.
func NewCountingFilter(builder *bloom.FilterBuilder) (*CountingFilter, error) {
	if err := builder.Complete(); err != nil {
		return nil, err
	}
	if builder.Name == "" {
		return nil, fmt.Errorf("%w: remote filter requires a dataset name", bloom.ErrInvalidConfig)
	}
	if builder.RedisHost == "" {
		return nil, fmt.Errorf("%w: remote filter requires a redis host", bloom.ErrInvalidConfig)
	}

	keys := NewKeySet(builder.Name)
	pool := NewPool(builder.RedisHost, builder.RedisPort, builder.RedisConnections, builder.ReadSlaves)

	filter := &CountingFilter{
		config:   builder,
		keys:     keys,
		pool:     pool,
		bits:     NewBitSet(pool, keys.BitsKey, uint32(builder.Size)),
		expireAt: builder.RedisExpireAtEpochSeconds,
	}
	if err := PersistConfig(pool, keys, builder); err != nil {
		pool.Close()
		return nil, err
	}
	if builder.OverwriteIfExists {
		if err := filter.Clear(); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return filter, nil
}

func (f *CountingFilter) Config() *bloom.FilterBuilder { return f.config }

// Add inserts the element and reports whether it was (probably) not yet
// present.
func (f *CountingFilter) Add(element []byte) (bool, error) {
	count, err := f.AddAndEstimateCount(element)
	return count == 1, err
}

// AddAndEstimateCount sets all bit positions of the element and increments
// all its counters inside one transaction watching both keys; on a concurrent
// modification the whole transaction is retried. Returns the minimum of the
// new counter values.
func (f *CountingFilter) AddAndEstimateCount(element []byte) (int64, error) {
	positions := f.config.Hash(element)

	replies, err := f.pool.TransactionWithRetry(func(conn redis.Conn) error {
		for _, position := range positions {
			if err := f.bits.SendSet(conn, position, true); err != nil {
				return err
			}
		}
		for _, position := range positions {
			if err := conn.Send("HINCRBY", f.keys.CountsKey, counterField(position), 1); err != nil {
				return err
			}
		}
		return f.sendExpireAt(conn)
	}, f.keys.BitsKey, f.keys.CountsKey)
	if err != nil {
		return 0, err
	}

	// The first len(positions) replies are the SETBIT results; the counter
	// values follow.
	min := int64(math.MaxInt64)
	for i := len(positions); i < 2*len(positions); i++ {
		count, err := redis.Int64(replies[i], nil)
		if err != nil {
			return 0, err
		}
		if count < min {
			min = count
		}
	}
	return min, nil
}

// Remove decrements the element's counters and reports whether this removed
// the last occurrence.
func (f *CountingFilter) Remove(element []byte) (bool, error) {
	count, err := f.RemoveAndEstimateCount(element)
	return count <= 0, err
}

// RemoveAndEstimateCount decrements the element's counters in a plain
// pipeline, then clears the bit of every position whose counter dropped to
// zero or below inside a watched transaction. When that transaction aborts
// the counters are re-read under a fresh watch and the clearing phase is
// retried; the decrements themselves are never repeated.
func (f *CountingFilter) RemoveAndEstimateCount(element []byte) (int64, error) {
	positions := f.config.Hash(element)
	fields := counterFields(positions)

	var min int64
	err := f.pool.WithConnection(func(conn redis.Conn) error {
		if _, err := conn.Do("WATCH", f.keys.CountsKey, f.keys.BitsKey); err != nil {
			return err
		}

		counts, err := f.decrementCounters(conn, fields)
		if err != nil {
			return err
		}

		for {
			if err := conn.Send("MULTI"); err != nil {
				return err
			}
			for i, count := range counts {
				if count <= 0 {
					if err := f.bits.SendSet(conn, positions[i], false); err != nil {
						return err
					}
				}
			}
			reply, err := conn.Do("EXEC")
			if err != nil {
				return err
			}
			if reply != nil {
				min = minimum(counts)
				return nil
			}

			// A concurrent writer touched the keys; the counters may have
			// changed, so re-read them under a fresh watch.
			if _, err := conn.Do("WATCH", f.keys.CountsKey, f.keys.BitsKey); err != nil {
				return err
			}
			counts, err = f.readCounters(conn, fields)
			if err != nil {
				return err
			}
		}
	})
	return min, err
}

func (f *CountingFilter) decrementCounters(conn redis.Conn, fields []string) ([]int64, error) {
	for _, field := range fields {
		if err := conn.Send("HINCRBY", f.keys.CountsKey, field, -1); err != nil {
			return nil, err
		}
	}
	if err := f.sendExpireAt(conn); err != nil {
		return nil, err
	}
	if err := conn.Flush(); err != nil {
		return nil, err
	}

	counts := make([]int64, len(fields))
	for i := range fields {
		count, err := redis.Int64(conn.Receive())
		if err != nil {
			return nil, err
		}
		counts[i] = count
	}
	if f.expireAt > 0 {
		if _, err := conn.Receive(); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

func (f *CountingFilter) readCounters(conn redis.Conn, fields []string) ([]int64, error) {
	arguments := make([]interface{}, 0, len(fields)+1)
	arguments = append(arguments, f.keys.CountsKey)
	for _, field := range fields {
		arguments = append(arguments, field)
	}
	values, err := redis.Values(conn.Do("HMGET", arguments...))
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		counts[i], err = redis.Int64(value, nil)
		if err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// GetEstimatedCount returns the minimum counter across the element's
// positions. Missing counters read as zero.
func (f *CountingFilter) GetEstimatedCount(element []byte) (int64, error) {
	fields := counterFields(f.config.Hash(element))

	var min int64
	err := f.pool.AllowingSlaves().WithConnection(func(conn redis.Conn) error {
		arguments := make([]interface{}, 0, len(fields)+1)
		arguments = append(arguments, f.keys.CountsKey)
		for _, field := range fields {
			arguments = append(arguments, field)
		}
		values, err := redis.Values(conn.Do("HMGET", arguments...))
		if err != nil {
			return err
		}

		found := false
		for _, value := range values {
			if value == nil {
				min = 0
				return nil
			}
			count, err := redis.Int64(value, nil)
			if err != nil {
				return err
			}
			if !found || count < min {
				min = count
				found = true
			}
		}
		return nil
	})
	return min, err
}

// Contains reports whether all bit positions of the element are set, read
// inside one consistent snapshot.
func (f *CountingFilter) Contains(element []byte) (bool, error) {
	return f.bits.IsAllSet(f.config.Hash(element)...)
}

func (f *CountingFilter) AddString(element string) (bool, error) {
	return f.Add(f.config.ToBytes(element))
}

func (f *CountingFilter) ContainsString(element string) (bool, error) {
	return f.Contains(f.config.ToBytes(element))
}

// Clear deletes the bit array and the counters but keeps the configuration
// snapshot.
func (f *CountingFilter) Clear() error {
	return f.pool.WithConnection(func(conn redis.Conn) error {
		_, err := conn.Do("DEL", f.keys.CountsKey, f.keys.BitsKey)
		return err
	})
}

// Destroy deletes all dataset keys including the configuration snapshot and
// closes the connection pools.
func (f *CountingFilter) Destroy() error {
	err := f.pool.WithConnection(func(conn redis.Conn) error {
		_, err := conn.Do("DEL", f.keys.CountsKey, f.keys.BitsKey, f.keys.ConfigKey)
		return err
	})
	if closeErr := f.pool.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (f *CountingFilter) IsEmpty() (bool, error) {
	return f.bits.IsEmpty()
}

// Cardinality returns the number of set bits.
func (f *CountingFilter) Cardinality() (int64, error) {
	return f.bits.Cardinality()
}

// EstimatedPopulation estimates the number of distinct contained elements.
func (f *CountingFilter) EstimatedPopulation() (float64, error) {
	oneBits, err := f.bits.Cardinality()
	if err != nil {
		return 0, err
	}
	m := float64(f.config.Size)
	k := float64(f.config.Hashes)
	if float64(oneBits) >= m {
		return math.Inf(1), nil
	}
	return -m / k * math.Log(1-float64(oneBits)/m), nil
}

// Union and Intersect are not defined on the remote counting backend.
func (f *CountingFilter) Union(other interface{}) error {
	return fmt.Errorf("%w: union on the remote counting filter", bloom.ErrUnsupported)
}

func (f *CountingFilter) Intersect(other interface{}) error {
	return fmt.Errorf("%w: intersect on the remote counting filter", bloom.ErrUnsupported)
}

// ToMemoryFilter snapshots the remote bits into an in-memory non-counting
// filter; the counters are not carried over.
func (f *CountingFilter) ToMemoryFilter() (*bloom.Filter, error) {
	data, err := f.bits.ToByteArray()
	if err != nil {
		return nil, err
	}
	memory, err := bloom.NewFilter(f.config.Clone())
	if err != nil {
		return nil, err
	}
	memory.OverwriteBits(data)
	return memory, nil
}

// BitSet exposes the remote bit array.
func (f *CountingFilter) BitSet() *BitSet { return f.bits }

func (f *CountingFilter) sendExpireAt(conn redis.Conn) error {
	if f.expireAt == 0 {
		return nil
	}
	return conn.Send("EXPIREAT", f.keys.CountsKey, f.expireAt)
}

func minimum(values []int64) int64 {
	min := values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
	}
	return min
}
