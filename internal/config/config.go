package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SMARTHOME"

// Config is the full application configuration.
type Config struct {
	Port string `mapstructure:"port"`

	Log struct {
		Level  string `mapstructure:"level"`  // debug|info|warn|error
		Format string `mapstructure:"format"` // console|json
	} `mapstructure:"log"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Auth struct {
		SigningKey string        `mapstructure:"signing_key"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Scheduler struct {
		Enabled         bool          `mapstructure:"enabled"`
		Tick            time.Duration `mapstructure:"tick"`
		DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	} `mapstructure:"scheduler"`

	Stream struct {
		Buffer int `mapstructure:"buffer"`
	} `mapstructure:"stream"`

	Analytics struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"analytics"`

	Telemetry struct {
		RatePerSec float64 `mapstructure:"rate_per_sec"`
		Burst      int     `mapstructure:"burst"`
	} `mapstructure:"telemetry"`

	MQTT struct {
		Enabled     bool   `mapstructure:"enabled"`
		Broker      string `mapstructure:"broker"`
		ClientID    string `mapstructure:"client_id"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"mqtt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", time.Minute)
	v.SetDefault("scheduler.dispatch_timeout", 10*time.Second)
	v.SetDefault("stream.buffer", 32)
	v.SetDefault("analytics.cache_ttl", 30*time.Second)
	v.SetDefault("telemetry.rate_per_sec", 1.0)
	v.SetDefault("telemetry.burst", 5)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "smarthome")
	v.SetDefault("mqtt.topic_prefix", "smarthome")
}

// Load reads configs/config.yml (or $CONFIG_FILE), applies SMARTHOME_* env
// overrides on top of defaults and validates the result. A missing config
// file is not an error.
func Load() (*Config, error) {
	return load(viper.New(), os.Getenv("CONFIG_FILE"))
}

func load(v *viper.Viper, file string) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return errors.New("auth.signing_key must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Scheduler.Tick <= 0 || c.Scheduler.Tick > time.Minute {
		return errors.New("scheduler.tick must be in (0, 1m]")
	}
	if c.Scheduler.DispatchTimeout <= 0 {
		return errors.New("scheduler.dispatch_timeout must be positive")
	}
	if c.Telemetry.RatePerSec <= 0 || c.Telemetry.Burst <= 0 {
		return errors.New("telemetry.rate_per_sec and telemetry.burst must be positive")
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker must be set when mqtt is enabled")
	}
	return nil
}
