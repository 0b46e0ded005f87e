package testing

import (
	"testing"

	"bloomsketch/internal/config"
	"bloomsketch/internal/core"
)

// TestSystemFactory builds service states with test-friendly defaults.
type TestSystemFactory struct {
	t *testing.T
}

func NewTestFactory(t *testing.T) *TestSystemFactory {
	return &TestSystemFactory{t: t}
}

// CreateSystem returns a SystemState with small default filters; opts can
// adjust the configuration before the state is built. Filters are destroyed
// on test cleanup.
func (f *TestSystemFactory) CreateSystem(opts ...func(*config.SystemConfiguration)) *core.SystemState {
	configuration := config.SystemConfiguration{
		ServerPort:               0,
		LogSeverityLevel:         "ERROR",
		DefaultExpectedElements:  1000,
		DefaultFalsePositiveRate: 0.01,
		DefaultHashMethod:        "MD5",
		DefaultCountingBits:      16,
		DefaultCharset:           "UTF-8",
		RedisPort:                config.DefaultRedisPort,
		RedisConnections:         2,
	}

	for _, opt := range opts {
		opt(&configuration)
	}

	state := core.NewSystemState(configuration)
	f.t.Cleanup(state.Shutdown)
	return state
}
