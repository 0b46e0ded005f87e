package core

import (
	"fmt"
	"time"

	"bloomsketch/internal/bloom"
	"bloomsketch/internal/cachesketch"
	"bloomsketch/internal/common"
	"bloomsketch/internal/redisbloom"
)

// RegisteredFilter is one named filter of the service, backed either by an
// in-memory expiring filter or by a Redis counting filter. Exactly one of the
// two backends is set.
type RegisteredFilter struct {
	Name     string
	Expiring *cachesketch.ExpiringFilter
	Remote   *redisbloom.CountingFilter
}

var _ common.CountingFilter = (*RegisteredFilter)(nil)
var _ common.ExpiryReporter = (*RegisteredFilter)(nil)

func (r *RegisteredFilter) Config() *bloom.FilterBuilder {
	if r.Remote != nil {
		return r.Remote.Config()
	}
	return r.Expiring.Config()
}

// ToBytes converts a string element using the filter's charset.
func (r *RegisteredFilter) ToBytes(element string) []byte {
	return r.Config().ToBytes(element)
}

func (r *RegisteredFilter) AddAndEstimateCount(element []byte) (int64, error) {
	if r.Remote != nil {
		return r.Remote.AddAndEstimateCount(element)
	}
	return r.Expiring.AddAndEstimateCount(element), nil
}

func (r *RegisteredFilter) RemoveAndEstimateCount(element []byte) (int64, error) {
	if r.Remote != nil {
		return r.Remote.RemoveAndEstimateCount(element)
	}
	return r.Expiring.RemoveAndEstimateCount(element), nil
}

func (r *RegisteredFilter) GetEstimatedCount(element []byte) (int64, error) {
	if r.Remote != nil {
		return r.Remote.GetEstimatedCount(element)
	}
	return r.Expiring.GetEstimatedCount(element), nil
}

func (r *RegisteredFilter) Contains(element []byte) (bool, error) {
	if r.Remote != nil {
		return r.Remote.Contains(element)
	}
	return r.Expiring.Contains(element), nil
}

func (r *RegisteredFilter) Clear() error {
	if r.Remote != nil {
		return r.Remote.Clear()
	}
	r.Expiring.Clear()
	return nil
}

// ReportRead records a cached read. Only memory-backed filters track cache
// expirations.
func (r *RegisteredFilter) ReportRead(element []byte, ttlNanos int64) error {
	if r.Expiring == nil {
		return fmt.Errorf("%w: report-read on a redis-backed filter", bloom.ErrUnsupported)
	}
	r.Expiring.ReportRead(element, time.Duration(ttlNanos))
	return nil
}

func (r *RegisteredFilter) ReportWrite(element []byte) error {
	if r.Expiring == nil {
		return fmt.Errorf("%w: report-write on a redis-backed filter", bloom.ErrUnsupported)
	}
	r.Expiring.ReportWrite(element)
	return nil
}

func (r *RegisteredFilter) IsCached(element []byte) (bool, error) {
	if r.Expiring == nil {
		return false, fmt.Errorf("%w: cache state on a redis-backed filter", bloom.ErrUnsupported)
	}
	return r.Expiring.IsCached(element), nil
}

// Destroy releases the backend: the worker of a memory filter is stopped,
// the keys of a remote filter are deleted and its pool closed.
func (r *RegisteredFilter) Destroy() error {
	if r.Remote != nil {
		return r.Remote.Destroy()
	}
	r.Expiring.Close()
	return nil
}
