// Package config loads langparser settings. Precedence, highest first:
// flags, LANGPARSER_* environment variables, the YAML config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/langparser/pkg/script"
)

// EnvPrefix is prepended to every environment override, e.g. LANGPARSER_LOG_LEVEL.
const EnvPrefix = "LANGPARSER"

// Config is the effective configuration.
type Config struct {
	DB           string                      `mapstructure:"db" yaml:"db" validate:"required"`
	Language     string                      `mapstructure:"language" yaml:"language" validate:"oneof=kr zh_CN zh_HK"`
	Log          LogConfig                   `mapstructure:"log" yaml:"log"`
	Workers      int                         `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=256"`
	BatchSize    int                         `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=1"`
	Fetch        FetchConfig                 `mapstructure:"fetch" yaml:"fetch"`
	Dictionaries map[string]DictionaryConfig `mapstructure:"dictionaries" yaml:"dictionaries" validate:"dive,keys,oneof=zh_CN zh_HK,endkeys"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// DictionaryConfig points a Chinese variant at dictionary files. CEDICT wins
// over Words/Readings; with neither set the embedded seed data is used. URL
// is where a missing CEDICT file is downloaded from.
type DictionaryConfig struct {
	Words    string `mapstructure:"words" yaml:"words,omitempty"`
	Readings string `mapstructure:"readings" yaml:"readings,omitempty"`
	CEDICT   string `mapstructure:"cedict" yaml:"cedict,omitempty"`
	URL      string `mapstructure:"url" yaml:"url,omitempty" validate:"omitempty,url"`
}

// Dir returns ~/.langparser.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".langparser"), nil
}

// Default returns the built-in defaults. The database lives next to the
// config file when the home directory is known.
func Default() *Config {
	dbPath := "langparser.db"
	if dir, err := Dir(); err == nil {
		dbPath = filepath.Join(dir, "langparser.db")
	}
	return &Config{
		DB:        dbPath,
		Language:  "zh_CN",
		Log:       LogConfig{Level: "info"},
		Workers:   4,
		BatchSize: 50,
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			CacheTTL: 15 * time.Minute,
		},
		Dictionaries: map[string]DictionaryConfig{},
	}
}

// SetDefaults registers the defaults of cfg on v so env overrides of
// nested keys are seen by Unmarshal.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("db", cfg.DB)
	v.SetDefault("language", cfg.Language)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.json", cfg.Log.JSON)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("fetch.timeout", cfg.Fetch.Timeout)
	v.SetDefault("fetch.cache_ttl", cfg.Fetch.CacheTTL)
	v.SetDefault("fetch.user_agent", cfg.Fetch.UserAgent)
}

// Load reads the config file (file, or config.yaml in Dir when empty) and
// the environment into v and returns the validated result. A missing
// default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v, Default())

	if file != "" {
		v.SetConfigFile(file)
	} else if dir, err := Dir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Dictionaries = canonicalKeys(cfg.Dictionaries)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// canonicalKeys restores the variant spelling of dictionary keys, which
// viper lowercases.
func canonicalKeys(in map[string]DictionaryConfig) map[string]DictionaryConfig {
	out := make(map[string]DictionaryConfig, len(in))
	for k, d := range in {
		for _, v := range script.Variants() {
			if strings.EqualFold(k, string(v)) {
				k = string(v)
				break
			}
		}
		out[k] = d
	}
	return out
}

var validate = validator.New()

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// YAML renders c the way config files are written.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return data, nil
}

// WriteDefault creates a commented default config file at path. An existing
// file is never overwritten.
func WriteDefault(path string) (err error) {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := Default().YAML()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	header := "# langparser configuration\n" +
		"#\n" +
		"# Configuration hierarchy (highest to lowest priority):\n" +
		"#   1. CLI flags\n" +
		"#   2. Environment variables (" + EnvPrefix + "_*)\n" +
		"#   3. This config file\n" +
		"#   4. Built-in defaults\n\n"
	if _, err = f.WriteString(header); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	_, err = f.WriteString("\n# Chinese dictionaries (optional, the embedded seed data is used otherwise):\n" +
		"# dictionaries:\n" +
		"#   zh_CN:\n" +
		"#     cedict: ~/.langparser/cedict_ts.u8\n" +
		"#     url: https://www.mdbg.net/chinese/export/cedict/cedict_1_0_ts_utf-8_mdbg.txt.gz\n")
	if err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}
