package testsupport

import (
	"path/filepath"
	"testing"

	"tunedrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The pairing listener binds to loopback and advertises 127.0.0.1 so tests
// never depend on the host's network interfaces.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Pairing.ListenAddr = "127.0.0.1:0"
	cfgVal.Pairing.AdvertiseHost = "127.0.0.1"
	cfgVal.Transfer.RetryBackoffMillis = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPairingTimeout overrides the pairing timeout in seconds.
func WithPairingTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pairing.TimeoutSeconds = seconds
	}
}

// WithConcurrency overrides the upload concurrency.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfer.Concurrency = n
	}
}
