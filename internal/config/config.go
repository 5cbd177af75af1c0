package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	envAPIKey    = "BINANCE_API_KEY"
	envAPISecret = "BINANCE_API_SECRET"
)

// Load reads the TOML config at path, applies defaults for every key the file
// left out, pulls API credentials from the environment and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, keys, err := decode(v)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg, keys)
	loadCredentials(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, keySet, error) {
	keys := make(keySet)
	for _, k := range v.AllKeys() {
		keys.mark(k)
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, keys, nil
}

func loadCredentials(cfg *Config) {
	cfg.Market.APIKey = strings.TrimSpace(os.Getenv(envAPIKey))
	cfg.Market.APISecret = strings.TrimSpace(os.Getenv(envAPISecret))
}
