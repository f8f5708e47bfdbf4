package cfg

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/five-vee/ringpool/wait"
)

// RingConfiguration controls the shape of the ring
type RingConfiguration struct {
	CapacityPower        int    `toml:"capacity_power"` // capacity is 1 << capacity_power
	WaitStrategy         string `toml:"wait_strategy"`
	ProducerWaitStrategy string `toml:"producer_wait_strategy"` // defaults to wait_strategy
	ConsumerGroups       int    `toml:"consumer_groups"`
	WorkersPerGroup      int    `toml:"workers_per_group"`
	ShutdownTimeoutMS    int    `toml:"shutdown_timeout_ms"`
	CPUAffinity          []int  `toml:"cpu_affinity"`
}

// Capacity returns the number of slots.
func (r RingConfiguration) Capacity() int64 {
	return int64(1) << r.CapacityPower
}

// ShutdownTimeout returns the shutdown timeout as a duration.
func (r RingConfiguration) ShutdownTimeout() time.Duration {
	return time.Duration(r.ShutdownTimeoutMS) * time.Millisecond
}

// ConsumerWait parses the consumer wait strategy.
func (r RingConfiguration) ConsumerWait() (wait.Kind, error) {
	return wait.ParseKind(r.WaitStrategy)
}

// ProducerWait parses the producer wait strategy.
func (r RingConfiguration) ProducerWait() (wait.Kind, error) {
	if r.ProducerWaitStrategy == "" {
		return r.ConsumerWait()
	}
	return wait.ParseKind(r.ProducerWaitStrategy)
}

// LoggingConfiguration controls log output
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls the metrics endpoint
type PrometheusConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
}

// BenchConfiguration controls the ringbench driver
type BenchConfiguration struct {
	Items          int64 `toml:"items"`
	PayloadBytes   int   `toml:"payload_bytes"`
	DrainTimeoutMS int   `toml:"drain_timeout_ms"`
}

// DrainTimeout returns the drain timeout as a duration.
func (b BenchConfiguration) DrainTimeout() time.Duration {
	return time.Duration(b.DrainTimeoutMS) * time.Millisecond
}

// Configuration is the root of the TOML file
type Configuration struct {
	Ring       RingConfiguration       `toml:"ring"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Bench      BenchConfiguration      `toml:"bench"`
}

// ConfigPathFlag is the path of the TOML file to load
var ConfigPathFlag = flag.String("config", "", "Path to configuration file")

// Config holds the active configuration
var Config = Default()

// Default returns the configuration used when no file is given.
func Default() *Configuration {
	return &Configuration{
		Ring: RingConfiguration{
			CapacityPower:     16,
			WaitStrategy:      "blocking",
			ConsumerGroups:    1,
			WorkersPerGroup:   1,
			ShutdownTimeoutMS: 5000,
		},
		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},
		Prometheus: PrometheusConfiguration{
			Enabled:     false,
			BindAddress: "127.0.0.1:9464",
		},
		Bench: BenchConfiguration{
			Items:          10_000_000,
			PayloadBytes:   8,
			DrainTimeoutMS: 30_000,
		},
	}
}

// Load reads configPath over the defaults. An empty path keeps the defaults.
func Load(configPath string) error {
	Config = Default()
	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file %s: %w", configPath, err)
	}
	if _, err := toml.DecodeFile(configPath, Config); err != nil {
		return fmt.Errorf("failed to decode %s: %w", configPath, err)
	}
	log.Debug().Str("path", configPath).Msg("Loaded configuration")
	return nil
}

// Validate checks Config for values the ring cannot be built with.
func Validate() error {
	r := Config.Ring
	// Capacity must fit an int64 sequence space with room to wrap.
	if r.CapacityPower < 0 || r.CapacityPower > 40 {
		return fmt.Errorf("ring.capacity_power must be in [0, 40], got %d", r.CapacityPower)
	}
	if _, err := r.ConsumerWait(); err != nil {
		return fmt.Errorf("ring.wait_strategy: %w", err)
	}
	if _, err := r.ProducerWait(); err != nil {
		return fmt.Errorf("ring.producer_wait_strategy: %w", err)
	}
	if r.ConsumerGroups < 1 {
		return fmt.Errorf("ring.consumer_groups must be >= 1, got %d", r.ConsumerGroups)
	}
	if r.WorkersPerGroup < 1 {
		return fmt.Errorf("ring.workers_per_group must be >= 1, got %d", r.WorkersPerGroup)
	}
	if r.ShutdownTimeoutMS <= 0 {
		return fmt.Errorf("ring.shutdown_timeout_ms must be positive, got %d", r.ShutdownTimeoutMS)
	}
	for _, cpu := range r.CPUAffinity {
		if cpu < 0 {
			return fmt.Errorf("ring.cpu_affinity contains negative cpu %d", cpu)
		}
	}
	switch Config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", Config.Logging.Format)
	}
	if Config.Prometheus.Enabled && Config.Prometheus.BindAddress == "" {
		return fmt.Errorf("prometheus.bind_address is required when prometheus is enabled")
	}
	if Config.Bench.Items < 0 {
		return fmt.Errorf("bench.items must be >= 0, got %d", Config.Bench.Items)
	}
	if Config.Bench.PayloadBytes < 0 {
		return fmt.Errorf("bench.payload_bytes must be >= 0, got %d", Config.Bench.PayloadBytes)
	}
	return nil
}
