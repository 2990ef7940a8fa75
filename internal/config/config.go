// Package config loads the service's runtime configuration from the
// environment using viper, with defaults for every configuration knob.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP/WS listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig controls the Redis connection shared by the cache, the
// driver-state store, pub/sub, and the GPS work queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MatrixCacheTTL  time.Duration `mapstructure:"matrix_cache_ttl"`
	DriverStateTTL  time.Duration `mapstructure:"driver_state_ttl"`
	LastGPSTTL      time.Duration `mapstructure:"last_gps_ttl"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
	QueueShardCount int           `mapstructure:"queue_shard_count"`
}

// MapsConfig controls the external distance-matrix provider.
type MapsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// SolverConfig controls the VRPTW solve.
type SolverConfig struct {
	Budget   time.Duration `mapstructure:"budget"`
	MaxStops int           `mapstructure:"max_stops"`
}

// TriggerConfig controls the re-routing trigger's thresholds.
type TriggerConfig struct {
	DelayThresholdMinutes float64       `mapstructure:"delay_threshold_minutes"`
	TrafficIncreaseRatio  float64       `mapstructure:"traffic_increase_ratio"`
	MinRerouteInterval    time.Duration `mapstructure:"min_reroute_interval"`
}

// KafkaConfig controls the ambient domain-event audit stream.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the service's fully-resolved runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Maps    MapsConfig    `mapstructure:"maps"`
	Solver  SolverConfig  `mapstructure:"solver"`
	Trigger TriggerConfig `mapstructure:"trigger"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Log     LogConfig     `mapstructure:"log"`
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and returns the resolved Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROUTING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.matrix_cache_ttl", 30*time.Minute)
	v.SetDefault("redis.driver_state_ttl", 12*time.Hour)
	v.SetDefault("redis.last_gps_ttl", 5*time.Minute)
	v.SetDefault("redis.consumer_group", "routing-maps-workers")
	v.SetDefault("redis.queue_shard_count", 8)

	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.base_url", "https://maps.googleapis.com/maps/api")

	v.SetDefault("solver.budget", 10*time.Second)
	v.SetDefault("solver.max_stops", 25)

	v.SetDefault("trigger.delay_threshold_minutes", 5.0)
	v.SetDefault("trigger.traffic_increase_ratio", 1.20)
	v.SetDefault("trigger.min_reroute_interval", 300*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "routing.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Bind the individual env vars explicitly (§6 Configuration).
	bindings := map[string]string{
		"server.port":                     "ROUTING_SERVER_PORT",
		"redis.addr":                      "ROUTING_REDIS_ADDR",
		"redis.password":                  "ROUTING_REDIS_PASSWORD",
		"redis.db":                        "ROUTING_REDIS_DB",
		"redis.matrix_cache_ttl":          "ROUTING_REDIS_MATRIX_CACHE_TTL",
		"redis.driver_state_ttl_seconds":  "DRIVER_STATE_TTL_SECONDS",
		"redis.last_gps_ttl":              "ROUTING_REDIS_LAST_GPS_TTL",
		"redis.consumer_group":            "ROUTING_REDIS_CONSUMER_GROUP",
		"redis.queue_shard_count":         "ROUTING_REDIS_QUEUE_SHARDS",
		"maps.api_key":                    "ROUTING_MAPS_API_KEY",
		"maps.base_url":                   "ROUTING_MAPS_BASE_URL",
		"solver.budget":                   "ROUTING_SOLVER_BUDGET",
		"solver.max_stops":                "ROUTING_SOLVER_MAX_STOPS",
		"trigger.delay_threshold_minutes": "DELAY_THRESHOLD_MINUTES",
		"trigger.traffic_increase_ratio":  "TRAFFIC_INCREASE_RATIO",
		"trigger.min_reroute_interval_seconds": "MIN_REROUTE_INTERVAL_SECONDS",
		"kafka.brokers":                   "ROUTING_KAFKA_BROKERS",
		"kafka.topic":                     "ROUTING_KAFKA_TOPIC",
		"log.level":                       "ROUTING_LOG_LEVEL",
		"log.format":                      "ROUTING_LOG_FORMAT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	// The *_SECONDS variables carry whole seconds, not Go duration strings.
	if v.IsSet("redis.driver_state_ttl_seconds") {
		cfg.Redis.DriverStateTTL = time.Duration(v.GetInt("redis.driver_state_ttl_seconds")) * time.Second
	}
	if v.IsSet("trigger.min_reroute_interval_seconds") {
		cfg.Trigger.MinRerouteInterval = time.Duration(v.GetInt("trigger.min_reroute_interval_seconds")) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configuration that would make the service unable to
// start correctly, rather than failing deep inside a request path.
func (c *Config) Validate() error {
	if c.Maps.APIKey == "" {
		return fmt.Errorf("config: maps.api_key (ROUTING_MAPS_API_KEY) is required")
	}
	if c.Solver.MaxStops < 2 {
		return fmt.Errorf("config: solver.max_stops must be >= 2")
	}
	return nil
}
