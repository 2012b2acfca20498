// config - источник загрузки конфигурации forum-client.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Cache    CacheConfig    `yaml:"cache"`
	Guard    GuardConfig    `yaml:"guard"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

// HTTPConfig — локальный view API для UI-оболочки.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"127.0.0.1"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50100"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// APIConfig — REST-бэкенд форума.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"   env:"API_BASE_URL"   env-default:"http://localhost:5000/api"`
	UserAgent string `yaml:"user_agent" env:"API_USER_AGENT" env-default:"forum-client"`
}

// RealtimeConfig — push-канал (WebSocket).
type RealtimeConfig struct {
	URL              string        `yaml:"url"               env:"REALTIME_URL"               env-default:"ws://localhost:5000/ws"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"REALTIME_HANDSHAKE_TIMEOUT" env-default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout"     env:"REALTIME_WRITE_TIMEOUT"     env-default:"5s"`
	ReconnectMin     time.Duration `yaml:"reconnect_min"     env:"REALTIME_RECONNECT_MIN"     env-default:"500ms"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"     env:"REALTIME_RECONNECT_MAX"     env-default:"30s"`
}

// CacheConfig — опциональный Redis для тёплого старта транскриптов.
// Пустой RedisURL отключает кэш.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url" env:"CACHE_REDIS_URL"`
	Prefix   string        `yaml:"prefix"    env:"CACHE_PREFIX"    env-default:"forum:transcript:"`
	TTL      time.Duration `yaml:"ttl"       env:"CACHE_TTL"       env-default:"24h"`
}

// GuardConfig — пути переадресации route guard.
type GuardConfig struct {
	LoginPath string `yaml:"login_path" env:"GUARD_LOGIN_PATH" env-default:"/login"`
	HomePath  string `yaml:"home_path"  env:"GUARD_HOME_PATH"  env-default:"/"`
}

// TimeoutConfig — таймауты запросов.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"15s"`
	Refresh time.Duration `yaml:"refresh" env:"REFRESH_TIMEOUT" env-default:"10s"`
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return cfg.validate()
	}

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		return readFile(p)
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return cfg.validate()
}

// validate проверяет значения, которые cleanenv не умеет проверить сам.
func (c *Config) validate() (*Config, error) {
	if c.API.BaseURL == "" {
		return nil, fmt.Errorf("invalid config: api.base_url is empty")
	}

	if c.Realtime.ReconnectMin <= 0 || c.Realtime.ReconnectMax < c.Realtime.ReconnectMin {
		return nil, fmt.Errorf("invalid config: realtime reconnect bounds %s..%s",
			c.Realtime.ReconnectMin, c.Realtime.ReconnectMax)
	}

	return c, nil
}
