// Package config loads kioku's settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/kioku/internal/srs"
	"github.com/conorfennell/kioku/internal/stats"
)

// EnvPrefix is stripped from environment variables; KIOKU_REPOS_DIR sets repos-dir.
const EnvPrefix = "KIOKU_"

// Config holds the service settings.
type Config struct {
	DB             string `koanf:"db" validate:"required"`
	Listen         string `koanf:"listen" validate:"required,hostname_port"`
	ReposDir       string `koanf:"repos-dir" validate:"required"`
	LogLevel       string `koanf:"log-level" validate:"oneof=debug info warn error"`
	LogFormat      string `koanf:"log-format" validate:"oneof=text json"`
	MaxInterval    int    `koanf:"max-interval" validate:"gte=1"`
	MatureInterval int    `koanf:"mature-interval" validate:"gte=1"`
}

// RegisterFlags adds the configuration flags, with their defaults, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", "kioku.db", "Path to the SQLite database file")
	fs.String("listen", "localhost:8080", "Address the web server listens on")
	fs.String("repos-dir", "repos", "Directory git sources are cloned into")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Int("max-interval", srs.DefaultParams().MaximumInterval, "Longest review interval in days")
	fs.Int("mature-interval", stats.DefaultMatureDays, "Interval in days at which a card counts as mastered")
}

// Load merges the YAML file named by --config, KIOKU_ environment variables
// and the parsed flags. Flags set on the command line win over the
// environment, which wins over the file. Unset flags only supply defaults.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config flag: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	return v
}()

// Validate checks every setting and reports all invalid keys at once.
// max-interval is also checked against the scheduler's graduation intervals.
func (c Config) Validate() error {
	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	if err := c.SchedulerParams().Validate(); err != nil {
		msgs = append(msgs, fmt.Sprintf("max-interval %d is not usable: %v", c.MaxInterval, err))
	}
	if len(msgs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// SchedulerParams returns the default scheduler parameters with this
// config's maximum interval.
func (c Config) SchedulerParams() srs.Params {
	p := srs.DefaultParams()
	p.MaximumInterval = c.MaxInterval
	return p
}
