package config

import (
	"time"
)

type Config struct {
	ERP          ERPConfig       `mapstructure:"erp"`
	StateStorage StateStorage    `mapstructure:"state_storage"`
	Sync         SyncConfig      `mapstructure:"sync"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Server       ServerConfig    `mapstructure:"server"`
	Logging      LoggingConfig   `mapstructure:"logging"`
}

// ERPConfig points at the Tharanis V3 SOAP endpoint.
type ERPConfig struct {
	URL              string        `mapstructure:"url" validate:"required,url"`
	CustomerCode     string        `mapstructure:"customer_code" validate:"required"`
	CompanyCode      string        `mapstructure:"company_code" validate:"required"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" validate:"gt=0"`
}

type StateStorage struct {
	Type         string `mapstructure:"type" validate:"oneof=mysql"`
	Host         string `mapstructure:"host" validate:"required"`
	Port         int    `mapstructure:"port" validate:"gt=0"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	PingRetries  int    `mapstructure:"ping_retries" validate:"gte=0"`
}

type SyncConfig struct {
	BatchInsertSize   int           `mapstructure:"batch_insert_size" validate:"gt=0"`
	DefaultPageSize   int           `mapstructure:"default_page_size" validate:"gt=0"`
	MaxPages          int           `mapstructure:"max_pages" validate:"gt=0"`
	Workers           int           `mapstructure:"workers" validate:"gt=0"`
	ChunkDelay        time.Duration `mapstructure:"chunk_delay" validate:"gte=0"`
	BackfillStartYear int           `mapstructure:"backfill_start_year" validate:"gte=1990"`
}

type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	RefreshInterval  string `mapstructure:"refresh_interval"`
	BackfillSchedule string `mapstructure:"backfill_schedule"`
}

// RedisConfig enables the cluster-wide guard for scheduled jobs. An empty
// Addr leaves scheduled jobs guarded only by the per-fingerprint sync lock.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port" validate:"gt=0"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}
