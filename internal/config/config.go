// Package config loads the bridge's configuration from the environment via
// viper, applies named presets, and validates the result — following the
// shape of the teacher's own internal/config package, extended with the
// option set spec.md section 6 defines.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/durationx"
	"github.com/syncbridge/eventbridge/internal/pkg/validator"
)

// ConsumerMode selects pull or push delivery for the subscription manager.
type ConsumerMode string

const (
	ConsumerModePull ConsumerMode = "pull"
	ConsumerModePush ConsumerMode = "push"
)

// Config holds every bridge option recognized by spec.md section 6.
type Config struct {
	Env string `validate:"required"`

	AppName        string   `validate:"required"`
	DestinationApp string   `validate:"required"`
	StreamName     string   `validate:"required"`
	NatsURLs       []string `validate:"required,min=1"`

	AutoProvision bool
	UseOutbox     bool
	UseInbox      bool
	UseDLQ        bool

	MaxDeliver        int `validate:"min=1"`
	AckWait           time.Duration
	Backoff           []time.Duration `validate:"min=1"`
	ConsumerMode      ConsumerMode
	DeliverySubject   string
	PushConsumerGroup string

	LazyConnect           bool
	ConnectRetryAttempts  int
	ConnectRetryDelay     time.Duration
	DisableJSAPI          bool

	DuplicateWindow time.Duration

	OutboxModel   string
	InboxModel    string
	PresetApplied string

	Database DatabaseConfig
	Redis    RedisConfig
	Consumer ConsumerTuning
}

// DatabaseConfig holds PostgreSQL configuration for the outbox/inbox stores.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional inbox dedupe cache.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// ConsumerTuning holds the consumer runtime's operational parameters.
type ConsumerTuning struct {
	BatchSize      int
	FetchTimeout   time.Duration
	IdleSleep      time.Duration
	MaxIdleBackoff time.Duration
	AdminHTTPPort  string
}


// Load reads configuration from the environment, applies a preset if
// BRIDGE_PRESET is set, and validates the result.
func Load() (*Config, error) {
	viper.SetEnvPrefix("bridge")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	cfg, err := build()
	if err != nil {
		return nil, err
	}

	if preset := viper.GetString("preset"); preset != "" {
		if err := ApplyPreset(cfg, preset); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("app_name", "")
	viper.SetDefault("destination_app", "")
	viper.SetDefault("stream_name", "SYNC_BRIDGE")
	viper.SetDefault("nats_urls", "nats://localhost:4222")

	viper.SetDefault("auto_provision", true)
	viper.SetDefault("use_outbox", true)
	viper.SetDefault("use_inbox", true)
	viper.SetDefault("use_dlq", true)

	viper.SetDefault("max_deliver", 5)
	viper.SetDefault("ack_wait", "30s")
	viper.SetDefault("backoff", "0.25s,1s,2s")
	viper.SetDefault("consumer_mode", "pull")
	viper.SetDefault("delivery_subject", "")
	viper.SetDefault("push_consumer_group", "")

	viper.SetDefault("lazy_connect", false)
	viper.SetDefault("connect_retry_attempts", 10)
	viper.SetDefault("connect_retry_delay", "2s")
	viper.SetDefault("disable_js_api", false)

	viper.SetDefault("duplicate_window", "2h")

	viper.SetDefault("outbox_model", "outbox_records")
	viper.SetDefault("inbox_model", "inbox_records")

	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", "5432")
	viper.SetDefault("db_user", "postgres")
	viper.SetDefault("db_password", "postgres")
	viper.SetDefault("db_name", "eventbridge")
	viper.SetDefault("db_sslmode", "disable")
	viper.SetDefault("db_max_open_conns", 25)
	viper.SetDefault("db_max_idle_conns", 5)
	viper.SetDefault("db_conn_max_lifetime", "5m")

	viper.SetDefault("redis_enabled", false)
	viper.SetDefault("redis_host", "localhost")
	viper.SetDefault("redis_port", "6379")
	viper.SetDefault("redis_password", "")
	viper.SetDefault("redis_db", 0)

	viper.SetDefault("batch_size", 10)
	viper.SetDefault("fetch_timeout", "5s")
	viper.SetDefault("idle_sleep", "1s")
	viper.SetDefault("max_idle_backoff", "30s")
	viper.SetDefault("admin_http_port", "8090")
}

func build() (*Config, error) {
	backoff, err := parseBackoffList(viper.GetString("backoff"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid backoff list: "+err.Error(), nil)
	}
	ackWait, err := durationx.Parse(viper.GetString("ack_wait"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid ack_wait: "+err.Error(), nil)
	}
	connectRetryDelay, err := durationx.Parse(viper.GetString("connect_retry_delay"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid connect_retry_delay: "+err.Error(), nil)
	}
	duplicateWindow, err := durationx.Parse(viper.GetString("duplicate_window"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid duplicate_window: "+err.Error(), nil)
	}
	connMaxLifetime, err := durationx.Parse(viper.GetString("db_conn_max_lifetime"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid db_conn_max_lifetime: "+err.Error(), nil)
	}
	fetchTimeout, err := durationx.Parse(viper.GetString("fetch_timeout"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid fetch_timeout: "+err.Error(), nil)
	}
	idleSleep, err := durationx.Parse(viper.GetString("idle_sleep"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid idle_sleep: "+err.Error(), nil)
	}
	maxIdleBackoff, err := durationx.Parse(viper.GetString("max_idle_backoff"))
	if err != nil {
		return nil, bridgeerrors.NewConfigurationError("invalid max_idle_backoff: "+err.Error(), nil)
	}

	cfg := &Config{
		Env:                  viper.GetString("env"),
		AppName:              viper.GetString("app_name"),
		DestinationApp:       viper.GetString("destination_app"),
		StreamName:           viper.GetString("stream_name"),
		NatsURLs:             splitCSV(viper.GetString("nats_urls")),
		AutoProvision:        viper.GetBool("auto_provision"),
		UseOutbox:            viper.GetBool("use_outbox"),
		UseInbox:             viper.GetBool("use_inbox"),
		UseDLQ:               viper.GetBool("use_dlq"),
		MaxDeliver:           viper.GetInt("max_deliver"),
		AckWait:              ackWait,
		Backoff:              backoff,
		ConsumerMode:         ConsumerMode(viper.GetString("consumer_mode")),
		DeliverySubject:      viper.GetString("delivery_subject"),
		PushConsumerGroup:    viper.GetString("push_consumer_group"),
		LazyConnect:          viper.GetBool("lazy_connect"),
		ConnectRetryAttempts: viper.GetInt("connect_retry_attempts"),
		ConnectRetryDelay:    connectRetryDelay,
		DisableJSAPI:         viper.GetBool("disable_js_api"),
		DuplicateWindow:      duplicateWindow,
		OutboxModel:          viper.GetString("outbox_model"),
		InboxModel:           viper.GetString("inbox_model"),
		Database: DatabaseConfig{
			Host:            viper.GetString("db_host"),
			Port:            viper.GetString("db_port"),
			User:            viper.GetString("db_user"),
			Password:        viper.GetString("db_password"),
			Name:            viper.GetString("db_name"),
			SSLMode:         viper.GetString("db_sslmode"),
			MaxOpenConns:    viper.GetInt("db_max_open_conns"),
			MaxIdleConns:    viper.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis_enabled"),
			Host:     viper.GetString("redis_host"),
			Port:     viper.GetString("redis_port"),
			Password: viper.GetString("redis_password"),
			DB:       viper.GetInt("redis_db"),
		},
		Consumer: ConsumerTuning{
			BatchSize:      viper.GetInt("batch_size"),
			FetchTimeout:   fetchTimeout,
			IdleSleep:      idleSleep,
			MaxIdleBackoff: maxIdleBackoff,
			AdminHTTPPort:  viper.GetString("admin_http_port"),
		},
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBackoffList(s string) ([]time.Duration, error) {
	parts := splitCSV(s)
	anys := make([]any, len(parts))
	for i, p := range parts {
		anys[i] = p
	}
	return durationx.ParseList(anys)
}

// Validate runs struct-tag validation (which covers required fields,
// max_deliver >= 1 and a non-empty backoff list) plus the bridge-specific
// checks validator tags can't express cleanly (consumer_mode is pull or
// push, app_name differs from destination_app), matching spec.md section
// 7's "configuration errors abort startup" policy.
func Validate(cfg *Config) error {
	if err := validator.Get().Struct(cfg); err != nil {
		return bridgeerrors.NewConfigurationError(err.Error(), nil)
	}
	if cfg.ConsumerMode != ConsumerModePull && cfg.ConsumerMode != ConsumerModePush {
		return bridgeerrors.NewConfigurationError("consumer_mode must be pull or push", map[string]any{"value": cfg.ConsumerMode})
	}
	if cfg.AppName == cfg.DestinationApp {
		return bridgeerrors.NewConfigurationError("app_name and destination_app must differ", nil)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string for the outbox/inbox
// stores, matching the teacher's config.GetDSN shape.
func (c *Config) GetDSN() string {
	return "host=" + c.Database.Host +
		" port=" + c.Database.Port +
		" user=" + c.Database.User +
		" password=" + c.Database.Password +
		" dbname=" + c.Database.Name +
		" sslmode=" + c.Database.SSLMode
}

// GetRedisAddr returns the Redis address for the dedupe cache.
func (c *Config) GetRedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}
