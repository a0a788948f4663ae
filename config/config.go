// Package config aggregates every tunable in spec §6 into one Config
// struct, defaulted by Default and overridable by functional Option or by
// loading a YAML file (grounded on the teacher's own flag/config layering
// for `cmd/consensus`, adapted here to `cmd/silo`).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxgrid/silo/mailbox"
	"github.com/fluxgrid/silo/utils/version"
)

// MailboxConfig mirrors spec §6's mailbox tunables.
type MailboxConfig struct {
	Capacity int              `yaml:"capacity"`
	FullMode mailbox.FullMode `yaml:"fullMode"`
	Adaptive AdaptiveConfig   `yaml:"adaptive"`
}

// AdaptiveConfig mirrors spec §6's adaptive-capacity tunables.
type AdaptiveConfig struct {
	InitialCapacity int     `yaml:"initialCapacity"`
	MinCapacity     int     `yaml:"minCapacity"`
	MaxCapacity     int     `yaml:"maxCapacity"`
	GrowThreshold   float64 `yaml:"growThreshold"`
	ShrinkThreshold float64 `yaml:"shrinkThreshold"`
	GrowthFactor    float64 `yaml:"growthFactor"`
	ShrinkFactor    float64 `yaml:"shrinkFactor"`
	MinSamples      int     `yaml:"minSamples"`
	Enabled         bool    `yaml:"enabled"`
}

// CircuitBreakerConfig mirrors spec §6's circuit-breaker tunables.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	SuccessThreshold int           `yaml:"successThreshold"`
	Timeout          time.Duration `yaml:"timeout"`
	SamplingWindow   time.Duration `yaml:"samplingWindow"`
	Enabled          bool          `yaml:"enabled"`
}

// RateLimitConfig mirrors spec §6's rate-limit tunables.
type RateLimitConfig struct {
	MaxMessagesPerWindow int                     `yaml:"maxMessagesPerWindow"`
	TimeWindow           time.Duration           `yaml:"timeWindow"`
	ExcessAction         mailbox.OverLimitPolicy `yaml:"excessAction"`
	Enabled              bool                    `yaml:"enabled"`
}

// SupervisionConfig mirrors spec §6's supervision tunables.
type SupervisionConfig struct {
	Strategy       string        `yaml:"strategy"`
	MaxRestarts    int           `yaml:"maxRestarts"`
	TimeWindow     time.Duration `yaml:"timeWindow"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Multiplier     float64       `yaml:"multiplier"`
	Escalate       bool          `yaml:"escalate"`
}

// DLQConfig mirrors spec §6's dead-letter-queue tunables.
type DLQConfig struct {
	Enabled            bool        `yaml:"enabled"`
	MaxMessages        int         `yaml:"maxMessages"`
	CaptureStackTraces bool        `yaml:"captureStackTraces"`
	Retry              RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors spec §6's retry tunables.
type RetryConfig struct {
	MaxRetries     int     `yaml:"maxRetries"`
	InitialDelayMs int     `yaml:"initialDelayMs"`
	MaxDelayMs     int     `yaml:"maxDelayMs"`
	Multiplier     float64 `yaml:"multiplier"`
	Jitter         bool    `yaml:"jitter"`
}

// ServerlessConfig mirrors spec §6's idle-deactivation tunables.
type ServerlessConfig struct {
	IdleTimeout         time.Duration `yaml:"idleTimeout"`
	CheckInterval       time.Duration `yaml:"checkInterval"`
	MinimumActiveActors int           `yaml:"minimumActiveActors"`
	EagerStateLoading   bool          `yaml:"eagerStateLoading"`
	Enabled             bool          `yaml:"enabled"`
}

// ChannelPoolConfig mirrors spec §6's transport channel-pool tunables.
type ChannelPoolConfig struct {
	MaxLifetime         time.Duration `yaml:"maxLifetime"`
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval"`
	DisposeIdleChannels bool          `yaml:"disposeIdleChannels"`
	IdleTimeout         time.Duration `yaml:"idleTimeout"`
}

// TransportConfig mirrors spec §6's transport tunables.
type TransportConfig struct {
	RequestTimeout time.Duration     `yaml:"requestTimeout"`
	ChannelPool    ChannelPoolConfig `yaml:"channelPool"`
}

// Config aggregates every tunable in spec §6 for one silo process.
type Config struct {
	SiloID     string `yaml:"siloId"`
	ListenAddr string `yaml:"listenAddr"`
	Region     string `yaml:"region"`
	Zone       string `yaml:"zone"`
	ShardGroup string `yaml:"shardGroup"`
	DataDir    string `yaml:"dataDir"`

	// MinSiloVersion floors placement eligibility (spec §9: version-aware
	// routing during a rolling upgrade). The zero value routes to any
	// advertised version.
	MinSiloVersion version.Semantic `yaml:"minSiloVersion"`

	Mailbox        MailboxConfig        `yaml:"mailbox"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	Supervision    SupervisionConfig    `yaml:"supervision"`
	DLQ            DLQConfig            `yaml:"dlq"`
	Serverless     ServerlessConfig     `yaml:"serverless"`
	Transport      TransportConfig      `yaml:"transport"`
}

// Option mutates a Config after Default has populated it.
type Option func(*Config)

// WithSiloID overrides the generated/default silo id.
func WithSiloID(id string) Option { return func(c *Config) { c.SiloID = id } }

// WithListenAddr overrides the transport listen address.
func WithListenAddr(addr string) Option { return func(c *Config) { c.ListenAddr = addr } }

// WithDataDir overrides the badger data directory.
func WithDataDir(dir string) Option { return func(c *Config) { c.DataDir = dir } }

// WithMinSiloVersion sets the placement eligibility floor (spec §9).
func WithMinSiloVersion(v version.Semantic) Option {
	return func(c *Config) { c.MinSiloVersion = v }
}

// Default returns the spec §6 default Config, with any Options applied.
func Default(opts ...Option) Config {
	c := Config{
		DataDir: "./data",
		Mailbox: MailboxConfig{
			Capacity: 1024,
			FullMode: mailbox.FullModeWait,
			Adaptive: AdaptiveConfig{
				InitialCapacity: 64,
				MinCapacity:     64,
				MaxCapacity:     8192,
				GrowThreshold:   0.8,
				ShrinkThreshold: 0.2,
				GrowthFactor:    2.0,
				ShrinkFactor:    0.5,
				MinSamples:      10,
				Enabled:         true,
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
			SamplingWindow:   60 * time.Second,
			Enabled:          false,
		},
		RateLimit: RateLimitConfig{
			MaxMessagesPerWindow: 1000,
			TimeWindow:           time.Second,
			ExcessAction:         mailbox.RateLimitDrop,
			Enabled:              false,
		},
		Supervision: SupervisionConfig{
			Strategy:       "OneForOne",
			MaxRestarts:    3,
			TimeWindow:     60 * time.Second,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
			Escalate:       true,
		},
		DLQ: DLQConfig{
			Enabled:            true,
			MaxMessages:        10000,
			CaptureStackTraces: true,
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialDelayMs: 100,
				MaxDelayMs:     30000,
				Multiplier:     2.0,
				Jitter:         true,
			},
		},
		Serverless: ServerlessConfig{
			IdleTimeout:         5 * time.Minute,
			CheckInterval:       time.Minute,
			MinimumActiveActors: 0,
			EagerStateLoading:   false,
			Enabled:             false,
		},
		Transport: TransportConfig{
			RequestTimeout: 30 * time.Second,
			ChannelPool: ChannelPoolConfig{
				MaxLifetime:         30 * time.Minute,
				HealthCheckInterval: 5 * time.Minute,
				DisposeIdleChannels: true,
				IdleTimeout:         10 * time.Minute,
			},
		},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Load reads a YAML file at path, layering it over Default().
func Load(path string, opts ...Option) (Config, error) {
	c := Default(opts...)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, err
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c, nil
}
