package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXPIPE_"

// Settings is the on-disk configuration. Files are merged in order, then
// EXPIPE_* environment variables are applied on top.
type Settings struct {
	Backend   string         `yaml:"backend" validate:"omitempty,oneof=fs filesystem memory remote redis"`
	DataPath  string         `yaml:"data_path"`
	Username  string         `yaml:"username" validate:"omitempty,excludes=/"`
	ReadOnly  bool           `yaml:"read_only"`
	Versioned bool           `yaml:"versioned"`
	Remote    RemoteSettings `yaml:"remote"`
	Redis     RedisSettings  `yaml:"redis"`
}

// RemoteSettings configure the remote document tree.
type RemoteSettings struct {
	URL            string `yaml:"url" validate:"omitempty,url"`
	APIKey         string `yaml:"api_key"`
	Email          string `yaml:"email" validate:"omitempty,email"`
	Password       string `yaml:"password" validate:"required_with=Email"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0,lte=20"`
}

// RedisSettings configure the redis adapter.
type RedisSettings struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Prefix string `yaml:"prefix" validate:"omitempty,excludes=:"`
}

// UserSettingsFile returns the per-user settings path, typically
// ~/.config/expipe/config.yaml.
func UserSettingsFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "expipe", "config.yaml"), nil
}

// LoadSettings reads files in order, skipping missing ones, applies the
// environment and validates the result.
func LoadSettings(files ...string) (Settings, error) {
	var s Settings
	for _, f := range files {
		if f == "" {
			continue
		}
		data, err := os.ReadFile(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return s, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("settings %s: %w", f, err)
		}
	}
	if err := applyEnv(&s, os.LookupEnv); err != nil {
		return s, err
	}
	if err := validate.Struct(s); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BACKEND":         &s.Backend,
		"DATA_PATH":       &s.DataPath,
		"USERNAME":        &s.Username,
		"REMOTE_URL":      &s.Remote.URL,
		"REMOTE_API_KEY":  &s.Remote.APIKey,
		"REMOTE_EMAIL":    &s.Remote.Email,
		"REMOTE_PASSWORD": &s.Remote.Password,
		"REDIS_URL":       &s.Redis.URL,
		"REDIS_PREFIX":    &s.Redis.Prefix,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"READ_ONLY": &s.ReadOnly,
		"VERSIONED": &s.Versioned,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	ints := map[string]*int{
		"REMOTE_TIMEOUT_SECONDS": &s.Remote.TimeoutSeconds,
		"REMOTE_MAX_RETRIES":     &s.Remote.MaxRetries,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	return nil
}
