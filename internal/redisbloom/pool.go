package redisbloom

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"

	"bloomsketch/internal/logger"
	"bloomsketch/internal/metrics"
)

// ErrRemoteUnavailable reports a transport failure or pool exhaustion against
// the Redis backend.
var ErrRemoteUnavailable = errors.New("redisbloom: redis unavailable")

const (
	retryBaseDelay    = time.Millisecond
	retryMaximumDelay = 50 * time.Millisecond
)

// Pool wraps a redigo connection pool plus optional read slave pools. Write
// operations always use the primary; read operations may go through
// AllowingSlaves. Connections that failed with a transport error are discarded
// by redigo instead of being returned to the pool.
type Pool struct {
	primary *redis.Pool
	slaves  []*Pool
}

// NewPool connects to host:port with at most maxConnections pooled
// connections. Each entry of readSlaves ("host:port") gets its own pool for
// read-only operations.
func NewPool(host string, port, maxConnections int, readSlaves []string) *Pool {
	pool := &Pool{primary: newRedigoPool(net.JoinHostPort(host, strconv.Itoa(port)), maxConnections)}
	for _, slaveAddress := range readSlaves {
		pool.slaves = append(pool.slaves, &Pool{primary: newRedigoPool(slaveAddress, maxConnections)})
	}
	return pool
}

func newRedigoPool(address string, maxConnections int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxConnections,
		MaxActive:   maxConnections,
		Wait:        true,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

// AllowingSlaves returns a randomly chosen read slave pool, or the primary
// pool when no slaves are configured.
func (p *Pool) AllowingSlaves() *Pool {
	if len(p.slaves) == 0 {
		return p
	}
	return p.slaves[rand.Intn(len(p.slaves))]
}

// WithConnection runs the operation on a pooled connection and returns the
// connection afterwards.
func (p *Pool) WithConnection(operation func(redis.Conn) error) error {
	conn := p.primary.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return wrapTransportError(operation(conn))
}

// Transactionally stages commands inside one MULTI/EXEC block and returns the
// raw replies. Without watched keys the transaction cannot abort; it serves as
// a consistent snapshot for bulk reads.
func (p *Pool) Transactionally(stage func(redis.Conn) error) ([]interface{}, error) {
	var results []interface{}
	err := p.WithConnection(func(conn redis.Conn) error {
		if err := conn.Send("MULTI"); err != nil {
			return err
		}
		if err := stage(conn); err != nil {
			return err
		}
		reply, err := conn.Do("EXEC")
		if err != nil {
			return err
		}
		results, err = redis.Values(reply, nil)
		return err
	})
	return results, err
}

// TransactionWithRetry stages commands inside WATCH/MULTI/EXEC on the given
// keys and retries from the top whenever a concurrent modification aborts the
// transaction, backing off under contention.
func (p *Pool) TransactionWithRetry(stage func(redis.Conn) error, watchKeys ...string) ([]interface{}, error) {
	var results []interface{}
	err := p.WithConnection(func(conn redis.Conn) error {
		delay := retryBaseDelay
		for {
			if _, err := conn.Do("WATCH", watchArguments(watchKeys)...); err != nil {
				return err
			}
			if err := conn.Send("MULTI"); err != nil {
				return err
			}
			if err := stage(conn); err != nil {
				conn.Do("DISCARD")
				return err
			}
			reply, err := conn.Do("EXEC")
			if err != nil {
				return err
			}
			if reply != nil {
				results, err = redis.Values(reply, nil)
				return err
			}

			metrics.IncrementRedisTransactionRetry()
			logger.LogDebugEvent("redis transaction aborted, retrying after %v", delay)
			time.Sleep(delay + time.Duration(rand.Int63n(int64(delay))))
			if delay < retryMaximumDelay {
				delay *= 2
			}
		}
	})
	return results, err
}

// Close shuts down the primary and all slave pools.
func (p *Pool) Close() error {
	err := p.primary.Close()
	for _, slave := range p.slaves {
		if closeErr := slave.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func watchArguments(keys []string) []interface{} {
	arguments := make([]interface{}, len(keys))
	for i, key := range keys {
		arguments[i] = key
	}
	return arguments
}

// wrapTransportError tags transport failures as ErrRemoteUnavailable while
// leaving Redis server replies (redis.Error) untouched.
func wrapTransportError(err error) error {
	if err == nil {
		return nil
	}
	var serverReply redis.Error
	if errors.As(err, &serverReply) {
		return err
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}
