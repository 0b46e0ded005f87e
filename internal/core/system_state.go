package core

import (
	"fmt"
	"sync"

	"bloomsketch/internal/bloom"
	"bloomsketch/internal/cachesketch"
	"bloomsketch/internal/common"
	"bloomsketch/internal/config"
	"bloomsketch/internal/redisbloom"
)

// SystemState holds the configuration and the named filters the service
// manages.
type SystemState struct {
	Configuration config.SystemConfiguration

	Mutex   sync.RWMutex
	Filters map[string]*RegisteredFilter
}

func NewSystemState(configuration config.SystemConfiguration) *SystemState {
	return &SystemState{
		Configuration: configuration,
		Filters:       make(map[string]*RegisteredFilter),
	}
}

// FilterParameters carries the per-filter overrides accepted on creation;
// zero values fall back to the configured defaults. The default element count
// applies only when Size is also zero, and the default false positive rate
// only when Hashes is also zero.
type FilterParameters struct {
	ExpectedElements  int
	Size              int
	Hashes            int
	FalsePositiveRate float64
	HashMethod        string
	CountingBits      int
	Charset           string
}

// CreateFilter registers a new named filter on the requested backend.
func (s *SystemState) CreateFilter(name, backend string, parameters FilterParameters) (*RegisteredFilter, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: filter name is required", bloom.ErrInvalidConfig)
	}

	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	if _, exists := s.Filters[name]; exists {
		return nil, fmt.Errorf("filter %q already exists", name)
	}

	builder := s.builderFor(name, parameters)
	registered := &RegisteredFilter{Name: name}

	switch backend {
	case common.BackendMemory, "":
		expiring, err := cachesketch.NewExpiringFilter(builder)
		if err != nil {
			return nil, err
		}
		registered.Expiring = expiring
	case common.BackendRedis:
		remote, err := redisbloom.NewCountingFilter(builder)
		if err != nil {
			return nil, err
		}
		registered.Remote = remote
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", bloom.ErrInvalidConfig, backend)
	}

	s.Filters[name] = registered
	return registered, nil
}

// GetFilter looks up a registered filter by name.
func (s *SystemState) GetFilter(name string) (*RegisteredFilter, bool) {
	s.Mutex.RLock()
	defer s.Mutex.RUnlock()
	filter, ok := s.Filters[name]
	return filter, ok
}

// DeleteFilter destroys the filter and removes it from the registry.
func (s *SystemState) DeleteFilter(name string) error {
	s.Mutex.Lock()
	filter, ok := s.Filters[name]
	delete(s.Filters, name)
	s.Mutex.Unlock()

	if !ok {
		return fmt.Errorf("filter %q does not exist", name)
	}
	return filter.Destroy()
}

// Shutdown destroys every registered filter.
func (s *SystemState) Shutdown() {
	s.Mutex.Lock()
	filters := s.Filters
	s.Filters = make(map[string]*RegisteredFilter)
	s.Mutex.Unlock()

	for _, filter := range filters {
		filter.Destroy()
	}
}

func (s *SystemState) builderFor(name string, parameters FilterParameters) *bloom.FilterBuilder {
	defaults := s.Configuration

	builder := &bloom.FilterBuilder{
		ExpectedElements:  parameters.ExpectedElements,
		Size:              parameters.Size,
		Hashes:            parameters.Hashes,
		FalsePositiveRate: parameters.FalsePositiveRate,
		Method:            bloom.HashMethod(parameters.HashMethod),
		CountingBits:      parameters.CountingBits,
		CharsetName:       parameters.Charset,

		Name:                      name,
		RedisHost:                 defaults.RedisHost,
		RedisPort:                 defaults.RedisPort,
		RedisConnections:          defaults.RedisConnections,
		ReadSlaves:                defaults.ReadSlaves,
		RedisExpireAtEpochSeconds: defaults.RedisExpireAtEpochSeconds,
		OverwriteIfExists:         defaults.OverwriteIfExists,
	}

	if builder.ExpectedElements == 0 && builder.Size == 0 {
		builder.ExpectedElements = defaults.DefaultExpectedElements
	}
	if builder.FalsePositiveRate == 0 && builder.Hashes == 0 {
		builder.FalsePositiveRate = defaults.DefaultFalsePositiveRate
	}
	if builder.Method == "" {
		builder.Method = bloom.HashMethod(defaults.DefaultHashMethod)
	}
	if builder.CountingBits == 0 {
		builder.CountingBits = defaults.DefaultCountingBits
	}
	if builder.CharsetName == "" {
		builder.CharsetName = defaults.DefaultCharset
	}
	return builder
}
