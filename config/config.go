package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Environment  string `mapstructure:"environment"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

type HealthCheckConfig struct {
	Interval    string `mapstructure:"interval"`
	Timeout     string `mapstructure:"timeout"`
	Path        string `mapstructure:"path"`
	Concurrency int    `mapstructure:"concurrency"`
}

type ForwardConfig struct {
	Timeout      string `mapstructure:"timeout"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Forward     ForwardConfig     `mapstructure:"forward"`
	Backends    []string          `mapstructure:"backends"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// Load reads config.yaml from ./config or the working directory, overlays
// environment variables (health_check.interval -> HEALTH_CHECK_INTERVAL) and
// validates the result. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("health_check.interval", "5s")
	v.SetDefault("health_check.timeout", "1s")
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("health_check.concurrency", 16)
	v.SetDefault("forward.timeout", "2s")
	v.SetDefault("forward.max_body_bytes", 1<<20)
	v.SetDefault("backends", []string{})
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.buffer_size", 1000)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.ReadTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.WriteTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.IdleTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Path,
						validation.Required,
						validation.By(validatePath),
					),
					validation.Field(&hc.Concurrency,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Forward,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(ForwardConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ForwardConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&fc.MaxBodyBytes,
						validation.Required,
						validation.Min(int64(1)),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Each(validation.By(validateInstanceURL)),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.When(mc.Enabled, validation.Required, validation.Min(1)),
					),
				)
			}),
		),
	)
}

// Duration parses a duration field that has passed Validate. It returns 0
// for empty or malformed input so callers fall back to their defaults.
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_nonpositive_duration", "must be greater than zero")
	}

	return nil
}

func validatePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}

func validateInstanceURL(value interface{}) error {
	instanceURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if instanceURL == "" {
		return validation.NewError("validation_empty_url", "instance URL cannot be empty")
	}

	parsedURL, err := url.Parse(instanceURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
