package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ERPSYNC_ERP_API_KEY.
const EnvPrefix = "ERPSYNC"

// LoadConfig reads the YAML file at path, applies a .env file from the
// working directory when present, then environment overrides, defaults and
// validation. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the file omits.
func setDefaults(v *viper.Viper) {
	v.SetDefault("erp.url", "https://login.tharanis.hu/apiv3.php")
	v.SetDefault("erp.customer_code", "")
	v.SetDefault("erp.company_code", "")
	v.SetDefault("erp.api_key", "")
	v.SetDefault("erp.timeout", "2m")
	v.SetDefault("erp.max_response_bytes", 64<<20)

	v.SetDefault("state_storage.type", "mysql")
	v.SetDefault("state_storage.host", "localhost")
	v.SetDefault("state_storage.port", 3306)
	v.SetDefault("state_storage.user", "erpsync")
	v.SetDefault("state_storage.password", "")
	v.SetDefault("state_storage.database", "erpsync")
	v.SetDefault("state_storage.max_open_conns", 10)
	v.SetDefault("state_storage.max_idle_conns", 5)
	v.SetDefault("state_storage.ping_retries", 30)

	v.SetDefault("sync.batch_insert_size", 500)
	v.SetDefault("sync.default_page_size", 200)
	v.SetDefault("sync.max_pages", 10000)
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.chunk_delay", "1s")
	v.SetDefault("sync.backfill_start_year", 2010)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.refresh_interval", "@every 5m")
	v.SetDefault("scheduler.backfill_schedule", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30m")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
