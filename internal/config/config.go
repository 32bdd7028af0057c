package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Inference InferenceConfig `yaml:"inference"`
	Admin     AdminConfig     `yaml:"admin"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RegistryConfig struct {
	// Path to the JSON model registry file.
	Path string `yaml:"path"`
	// Watch reloads the in-memory snapshot when the file changes on disk.
	Watch bool `yaml:"watch"`
}

type InferenceConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Timeout bounds a single completion call; expiry surfaces as a
	// transient inference error so the caller may decide to retry.
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// PromptGeneratorModel is the deployment used for system-prompt
	// generation when that feature is enabled.
	PromptGeneratorModel string `yaml:"prompt_generator_model"`
	MaxConcurrent        int    `yaml:"max_concurrent"`
}

type AdminConfig struct {
	// Password gates the admin API. Empty disables the admin API entirely.
	// Supply via ${PROMPTLAB_ADMIN_PASSWORD}; it is never logged.
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

// Enabled reports whether a usage ledger database is configured at all.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Registry: RegistryConfig{
			Path:  "configs/models.json",
			Watch: true,
		},
		Inference: InferenceConfig{
			Timeout:              60 * time.Second,
			PromptGeneratorModel: "gpt-4o",
			MaxConcurrent:        16,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Port:            5432,
			Name:            "promptlab",
			User:            "promptlab",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
	}
}
