package redisbloom

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gomodule/redigo/redis"

	"bloomsketch/internal/bloom"
)

// KeySet holds the Redis keys of one dataset: the configuration snapshot
// under the plain name, the bit array under <name>:bits and the counters
// under <name>:counts.
type KeySet struct {
	ConfigKey string
	BitsKey   string
	CountsKey string
}

func NewKeySet(name string) KeySet {
	return KeySet{
		ConfigKey: name,
		BitsKey:   name + ":bits",
		CountsKey: name + ":counts",
	}
}

// counterField encodes a bit position as the 4-byte big-endian hash field
// addressing its counter.
func counterField(position uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], position)
	return string(buf[:])
}

func counterFields(positions []uint32) []string {
	fields := make([]string, len(positions))
	for i, position := range positions {
		fields[i] = counterField(position)
	}
	return fields
}

// PersistConfig writes the configuration snapshot for a fresh dataset, or
// verifies compatibility against the stored snapshot when reattaching to an
// existing one. With OverwriteIfExists the stored snapshot is replaced.
func PersistConfig(pool *Pool, keys KeySet, builder *bloom.FilterBuilder) error {
	return pool.WithConnection(func(conn redis.Conn) error {
		stored, err := redis.StringMap(conn.Do("HGETALL", keys.ConfigKey))
		if err != nil {
			return err
		}

		if len(stored) > 0 && !builder.OverwriteIfExists {
			return verifyStoredConfig(stored, builder)
		}

		_, err = conn.Do("HSET", keys.ConfigKey,
			"size", builder.Size,
			"hashes", builder.Hashes,
			"hashMethod", string(builder.Method),
			"charset", builder.CharsetName,
			"expectedElements", builder.ExpectedElements,
			"falsePositiveProbability", strconv.FormatFloat(builder.FalsePositiveRate, 'g', -1, 64),
			"countingBits", builder.CountingBits,
		)
		return err
	})
}

func verifyStoredConfig(stored map[string]string, builder *bloom.FilterBuilder) error {
	storedSize, _ := strconv.Atoi(stored["size"])
	storedHashes, _ := strconv.Atoi(stored["hashes"])
	storedConfig := &bloom.FilterBuilder{
		Size:        storedSize,
		Hashes:      storedHashes,
		Method:      bloom.HashMethod(stored["hashMethod"]),
		CharsetName: stored["charset"],
	}
	if !builder.IsCompatibleTo(storedConfig) {
		return fmt.Errorf("%w: dataset already exists with size=%d hashes=%d hashMethod=%s charset=%s",
			bloom.ErrIncompatibleFilters, storedSize, storedHashes, stored["hashMethod"], stored["charset"])
	}
	return nil
}
