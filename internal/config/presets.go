package config

import (
	"time"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

// Preset names recognized by spec.md section 6.
const (
	PresetDevelopment       = "development"
	PresetTest              = "test"
	PresetStaging           = "staging"
	PresetProduction        = "production"
	PresetHighThroughput    = "high_throughput"
	PresetMaximumReliability = "maximum_reliability"
)

// ApplyPreset mutates cfg in place with a named bundle of option values,
// then records which preset was applied. Unknown preset names are rejected
// as configuration errors, matching spec.md's "non-recognized keys
// rejected" rule for presets.
func ApplyPreset(cfg *Config, name string) error {
	switch name {
	case PresetDevelopment:
		cfg.Env = "development"
		cfg.AutoProvision = true
		cfg.Consumer.BatchSize = 5
		cfg.Consumer.FetchTimeout = 2 * time.Second
	case PresetTest:
		cfg.Env = "test"
		cfg.AutoProvision = true
		cfg.LazyConnect = true
		cfg.Consumer.BatchSize = 1
		cfg.DuplicateWindow = time.Minute
	case PresetStaging:
		cfg.Env = "staging"
		cfg.AutoProvision = true
		cfg.MaxDeliver = 5
	case PresetProduction:
		cfg.Env = "production"
		cfg.AutoProvision = false
		cfg.MaxDeliver = 10
		cfg.Consumer.BatchSize = 20
		cfg.DuplicateWindow = 2 * time.Hour
	case PresetHighThroughput:
		cfg.Consumer.BatchSize = 100
		cfg.Consumer.FetchTimeout = 1 * time.Second
		cfg.Consumer.IdleSleep = 100 * time.Millisecond
		cfg.ConsumerMode = ConsumerModePull
	case PresetMaximumReliability:
		cfg.MaxDeliver = 20
		cfg.UseOutbox = true
		cfg.UseInbox = true
		cfg.UseDLQ = true
		cfg.Backoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, time.Minute}
		cfg.ConnectRetryAttempts = 30
	default:
		return bridgeerrors.NewConfigurationError("unknown preset: "+name, map[string]any{"preset": name})
	}
	cfg.PresetApplied = name
	return nil
}
