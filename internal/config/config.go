// README: Config loader (koanf): optional YAML/JSON file plus CARPOOL_ env overrides, with defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"carpool/internal/types"
)

const EnvPrefix = "CARPOOL_"

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type MapsConfig struct {
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

type RouteConfig struct {
	Destination        string        `json:"destination"`
	DurationBudget     time.Duration `json:"duration_budget"`
	ProximityThreshold time.Duration `json:"proximity_threshold"`
	ArrivalRadiusM     float64       `json:"arrival_radius_m"`
	ProviderTimeout    time.Duration `json:"provider_timeout"`
	JoinAttempts       int           `json:"join_attempts"`
}

type CipherConfig struct {
	KeyFile string `json:"key_file"`
}

type DBConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr string `json:"addr"`
}

type FirebaseConfig struct {
	ProjectID       string `json:"project_id"`
	CredentialsFile string `json:"credentials_file"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Log      LogConfig      `json:"log"`
	Maps     MapsConfig     `json:"maps"`
	Route    RouteConfig    `json:"route"`
	Cipher   CipherConfig   `json:"cipher"`
	DB       DBConfig       `json:"db"`
	Redis    RedisConfig    `json:"redis"`
	Firebase FirebaseConfig `json:"firebase"`
	Kafka    KafkaConfig    `json:"kafka"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// Load reads the optional config file at path and applies CARPOOL_ environment
// overrides. A double underscore separates nesting levels, e.g.
// CARPOOL_ROUTE__DESTINATION.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Maps.Timeout <= 0 {
		c.Maps.Timeout = 10 * time.Second
	}
	if c.Route.Destination == "" {
		c.Route.Destination = "51.155406,71.4101"
	}
	if c.Route.DurationBudget <= 0 {
		c.Route.DurationBudget = 2 * time.Hour
	}
	if c.Route.ProximityThreshold <= 0 {
		c.Route.ProximityThreshold = 5 * time.Minute
	}
	if c.Route.ArrivalRadiusM <= 0 {
		c.Route.ArrivalRadiusM = 50
	}
	if c.Route.ProviderTimeout <= 0 {
		c.Route.ProviderTimeout = c.Maps.Timeout
	}
	if c.Route.JoinAttempts <= 0 {
		c.Route.JoinAttempts = 3
	}
	if c.Cipher.KeyFile == "" {
		c.Cipher.KeyFile = "encryption_key.key"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "carpool.route-events"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "carpool-api"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "carpool/drivers/+/location"
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.Maps.APIKey == "" {
		return fmt.Errorf("%w: maps.api_key is required", ErrInvalidConfig)
	}
	if !validPoint(c.Route.Destination) {
		return fmt.Errorf("%w: route.destination must be \"lat,lon\"", ErrInvalidConfig)
	}
	// Bare numbers decode as nanoseconds; durations are written like "2h" or "90s".
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"maps.timeout", c.Maps.Timeout},
		{"route.duration_budget", c.Route.DurationBudget},
		{"route.proximity_threshold", c.Route.ProximityThreshold},
		{"route.provider_timeout", c.Route.ProviderTimeout},
	} {
		if d.val < time.Second {
			return fmt.Errorf("%w: %s is %s, use a duration such as \"2h\" or \"30s\"", ErrInvalidConfig, d.key, d.val)
		}
	}
	if c.Firebase.CredentialsFile != "" && c.Firebase.ProjectID == "" {
		return fmt.Errorf("%w: firebase.project_id is required with credentials_file", ErrInvalidConfig)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: kafka.topic is required", ErrInvalidConfig)
	}
	return nil
}

func validPoint(s string) bool {
	_, err := types.ParsePoint(s)
	return err == nil
}
