package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name string `yaml:"name"`
		Port string `yaml:"port" validate:"required"`
	} `yaml:"app"`

	Remote struct {
		BaseURL        string `yaml:"base_url" validate:"required,url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=0"`
		// Token is normally injected through CART_API_TOKEN, not the file.
		Token string `yaml:"token"`
	} `yaml:"remote"`

	Storage struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"storage"`

	Cart struct {
		SettleDelayMS int `yaml:"settle_delay_ms" validate:"min=0"`
	} `yaml:"cart"`
}

// Load reads the YAML config file, then applies environment overrides
// (optionally sourced from a .env file next to the binary).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file '%s': %w", path, err)
	}

	if port := os.Getenv("APP_PORT"); port != "" {
		cfg.App.Port = port
	}
	if baseURL := os.Getenv("CART_API_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if token := os.Getenv("CART_API_TOKEN"); token != "" {
		cfg.Remote.Token = token
	}
	if storagePath := os.Getenv("CART_STORAGE_PATH"); storagePath != "" {
		cfg.Storage.Path = storagePath
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Cart.SettleDelayMS) * time.Millisecond
}
