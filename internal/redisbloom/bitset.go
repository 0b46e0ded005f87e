package redisbloom

import (
	"github.com/gomodule/redigo/redis"

	"bloomsketch/internal/bloom"
)

// BitSet is a bit array stored under one Redis key, addressed with GETBIT and
// SETBIT. The byte layout of the value matches bloom.BitVector.ToByteArray,
// so local and remote snapshots compare directly.
type BitSet struct {
	pool *Pool
	key  string
	size uint32
}

func NewBitSet(pool *Pool, key string, size uint32) *BitSet {
	return &BitSet{pool: pool, key: key, size: size}
}

func (b *BitSet) Size() uint32 { return b.size }

func (b *BitSet) Get(index uint32) (bool, error) {
	var value bool
	err := b.pool.AllowingSlaves().WithConnection(func(conn redis.Conn) error {
		bit, err := redis.Int(conn.Do("GETBIT", b.key, index))
		value = bit == 1
		return err
	})
	return value, err
}

// GetBulk reads the given positions inside one MULTI/EXEC block, so all
// values reflect a single coherent state.
func (b *BitSet) GetBulk(indexes ...uint32) ([]bool, error) {
	replies, err := b.pool.AllowingSlaves().Transactionally(func(conn redis.Conn) error {
		for _, index := range indexes {
			if err := conn.Send("GETBIT", b.key, index); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	values := make([]bool, len(replies))
	for i, reply := range replies {
		bit, err := redis.Int(reply, nil)
		if err != nil {
			return nil, err
		}
		values[i] = bit == 1
	}
	return values, nil
}

// IsAllSet reports whether every given position is set.
func (b *BitSet) IsAllSet(indexes ...uint32) (bool, error) {
	values, err := b.GetBulk(indexes...)
	if err != nil {
		return false, err
	}
	for _, value := range values {
		if !value {
			return false, nil
		}
	}
	return true, nil
}

func (b *BitSet) Set(index uint32, value bool) error {
	return b.pool.WithConnection(func(conn redis.Conn) error {
		_, err := conn.Do("SETBIT", b.key, index, bitArgument(value))
		return err
	})
}

// SendSet stages the SETBIT on an external connection, typically inside a
// caller-managed MULTI block.
func (b *BitSet) SendSet(conn redis.Conn, index uint32, value bool) error {
	return conn.Send("SETBIT", b.key, index, bitArgument(value))
}

// SetAll sets every given position inside one transaction and reports whether
// any of them was previously unset.
func (b *BitSet) SetAll(indexes ...uint32) (bool, error) {
	replies, err := b.pool.Transactionally(func(conn redis.Conn) error {
		for _, index := range indexes {
			if err := conn.Send("SETBIT", b.key, index, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, reply := range replies {
		previous, err := redis.Int(reply, nil)
		if err != nil {
			return false, err
		}
		if previous == 0 {
			return true, nil
		}
	}
	return false, nil
}

// Cardinality returns the number of set bits via BITCOUNT.
func (b *BitSet) Cardinality() (int64, error) {
	var count int64
	err := b.pool.WithConnection(func(conn redis.Conn) error {
		var err error
		count, err = redis.Int64(conn.Do("BITCOUNT", b.key))
		return err
	})
	return count, err
}

func (b *BitSet) IsEmpty() (bool, error) {
	count, err := b.Cardinality()
	return count == 0, err
}

// ToByteArray snapshots the stored value. A missing key reads as all zeros.
func (b *BitSet) ToByteArray() ([]byte, error) {
	var data []byte
	err := b.pool.AllowingSlaves().WithConnection(func(conn redis.Conn) error {
		reply, err := conn.Do("GET", b.key)
		if err != nil {
			return err
		}
		if reply == nil {
			data = make([]byte, (b.size+7)/8)
			return nil
		}
		data, err = redis.Bytes(reply, nil)
		return err
	})
	return data, err
}

// Overwrite replaces the stored value with the given serialized bits.
func (b *BitSet) Overwrite(data []byte) error {
	return b.pool.WithConnection(func(conn redis.Conn) error {
		_, err := conn.Do("SET", b.key, data)
		return err
	})
}

func (b *BitSet) Clear() error {
	return b.pool.WithConnection(func(conn redis.Conn) error {
		_, err := conn.Do("DEL", b.key)
		return err
	})
}

// ToBitVector converts the remote bits to an in-memory bit vector.
func (b *BitSet) ToBitVector() (*bloom.BitVector, error) {
	data, err := b.ToByteArray()
	if err != nil {
		return nil, err
	}
	return bloom.FromByteArray(data, b.size), nil
}

// Equal compares logical bit contents with an in-memory vector.
func (b *BitSet) Equal(other *bloom.BitVector) (bool, error) {
	snapshot, err := b.ToBitVector()
	if err != nil {
		return false, err
	}
	return snapshot.Equal(other), nil
}

func bitArgument(value bool) int {
	if value {
		return 1
	}
	return 0
}
