// Package config loads operator defaults and host aliases.
//
// Values are layered from lowest to highest precedence: built-in defaults,
// the config file, SSHCHECK_* environment variables and command line flags.
// Passwords are never read from the config file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eugenetaranov/sshcheck/internal/connector"
	"github.com/eugenetaranov/sshcheck/internal/diagnostics"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "SSHCHECK"

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "~/.config/sshcheck/config.yaml"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrPasswordInConfig is returned when the config file holds a password.
var ErrPasswordInConfig = errors.New("passwords must not be stored in the config file")

// Host is a named target.
type Host struct {
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User string `mapstructure:"user" yaml:"user,omitempty"`
}

// Config holds the resolved settings.
type Config struct {
	Port           int             `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	Timeout        time.Duration   `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	CommandTimeout time.Duration   `mapstructure:"command_timeout" yaml:"command_timeout" validate:"gt=0"`
	Output         string          `mapstructure:"output" yaml:"output" validate:"oneof=text json yaml"`
	Color          bool            `mapstructure:"color" yaml:"color"`
	Debug          bool            `mapstructure:"debug" yaml:"debug"`
	Hosts          map[string]Host `mapstructure:"hosts" yaml:"hosts,omitempty" validate:"dive"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// flagKeys maps config keys to the flag names bound to them.
var flagKeys = map[string]string{
	"port":            "port",
	"timeout":         "timeout",
	"command_timeout": "command-timeout",
	"output":          "output",
	"debug":           "debug",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", connector.DefaultPort)
	v.SetDefault("timeout", connector.DefaultTimeout)
	v.SetDefault("command_timeout", diagnostics.DefaultCommandTimeout)
	v.SetDefault("output", FormatText)
	v.SetDefault("color", true)
	v.SetDefault("debug", false)
}

// Load reads the configuration. An empty path looks for DefaultPath and
// tolerates its absence; an explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path %q: %w", path, err)
	}

	if explicit {
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(filepath.Dir(expanded))
		v.SetConfigName(strings.TrimSuffix(filepath.Base(expanded), filepath.Ext(expanded)))
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := checkNoPasswords(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkNoPasswords(v *viper.Viper) error {
	if v.InConfig("password") {
		return ErrPasswordInConfig
	}
	for alias := range v.GetStringMap("hosts") {
		if v.InConfig("hosts." + alias + ".password") {
			return fmt.Errorf("host %q: %w", alias, ErrPasswordInConfig)
		}
	}
	return nil
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks value ranges and host entries.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid config: %w", err)
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("invalid config: output must be one of text, json, yaml (got %q)", fe.Value())
	case "min", "max":
		return fmt.Errorf("invalid config: %s must be between 1 and 65535", field)
	case "gt":
		return fmt.Errorf("invalid config: %s must be positive", field)
	case "required":
		return fmt.Errorf("invalid config: %s is required", field)
	default:
		return fmt.Errorf("invalid config: %s failed %q check", field, fe.Tag())
	}
}

// Lookup returns the host stored under alias. Aliases are case-insensitive.
func (c *Config) Lookup(alias string) (Host, error) {
	h, ok := c.Hosts[strings.ToLower(alias)]
	if !ok {
		return Host{}, fmt.Errorf("unknown host alias %q", alias)
	}
	return h, nil
}

// Aliases returns the configured host aliases in sorted order.
func (c *Config) Aliases() []string {
	aliases := make([]string, 0, len(c.Hosts))
	for a := range c.Hosts {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return aliases
}

// Params builds connection parameters from the defaults and an optional
// alias. Fields already set in p take precedence.
func (c *Config) Params(alias string, p connector.Params) (connector.Params, error) {
	if alias != "" {
		h, err := c.Lookup(alias)
		if err != nil {
			return p, err
		}
		if p.Host == "" {
			p.Host = h.Host
		}
		if p.User == "" {
			p.User = h.User
		}
		if p.Port == 0 {
			p.Port = h.Port
		}
	}
	if p.Port == 0 {
		p.Port = c.Port
	}
	if p.Timeout <= 0 {
		p.Timeout = c.Timeout
	}
	return p, nil
}
