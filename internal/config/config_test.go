package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile — утилита записи временного файла конфигурации.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir — смена текущего рабочего каталога с авто-возвратом.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
http:
  host: "0.0.0.0"
  port: "8080"
api:
  base_url: "https://forum.example.com/api"
  user_agent: "forum-client/test"
realtime:
  url: "wss://forum.example.com/ws"
  handshake_timeout: "3s"
  write_timeout: "2s"
  reconnect_min: "100ms"
  reconnect_max: "5s"
cache:
  redis_url: "redis://localhost:6379/1"
  prefix: "t:"
  ttl: "1h"
guard:
  login_path: "/signin"
  home_path: "/feed"
timeouts:
  service: "3s"
  refresh: "4s"
`

// Минимальный YAML (всё остальное — через дефолты/ENV).
const minimalYAML = `
env: "stage"
`

const brokenYAML = `
env: [unclosed
`

func TestHTTPConfig_Addr(t *testing.T) {
	t.Parallel()
	cfg := HTTPConfig{Host: "127.0.0.1", Port: "8080"}
	require.Equal(t, "127.0.0.1:8080", cfg.Addr())
}

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	require.Equal(t, "https://forum.example.com/api", cfg.API.BaseURL)
	require.Equal(t, "forum-client/test", cfg.API.UserAgent)

	require.Equal(t, "wss://forum.example.com/ws", cfg.Realtime.URL)
	require.Equal(t, 3*time.Second, cfg.Realtime.HandshakeTimeout)
	require.Equal(t, 2*time.Second, cfg.Realtime.WriteTimeout)
	require.Equal(t, 100*time.Millisecond, cfg.Realtime.ReconnectMin)
	require.Equal(t, 5*time.Second, cfg.Realtime.ReconnectMax)

	require.Equal(t, "redis://localhost:6379/1", cfg.Cache.RedisURL)
	require.Equal(t, "t:", cfg.Cache.Prefix)
	require.Equal(t, time.Hour, cfg.Cache.TTL)

	require.Equal(t, "/signin", cfg.Guard.LoginPath)
	require.Equal(t, "/feed", cfg.Guard.HomePath)

	require.Equal(t, 3*time.Second, cfg.Timeouts.Service)
	require.Equal(t, 4*time.Second, cfg.Timeouts.Refresh)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "stage", cfg.Env)
	require.Equal(t, "127.0.0.1:50100", cfg.HTTP.Addr())
	require.Equal(t, "http://localhost:5000/api", cfg.API.BaseURL)
	require.Equal(t, 500*time.Millisecond, cfg.Realtime.ReconnectMin)
	require.Equal(t, 30*time.Second, cfg.Realtime.ReconnectMax)
	require.Empty(t, cfg.Cache.RedisURL)
	require.Equal(t, "/login", cfg.Guard.LoginPath)
	require.Equal(t, 10*time.Second, cfg.Timeouts.Refresh)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_WithExplicitPath_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")
}

func TestLoad_InvalidReconnectBounds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", `
realtime:
  reconnect_min: "10s"
  reconnect_max: "1s"
`)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reconnect bounds")
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "from_env_path.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "8080", cfg.HTTP.Port)
}

// CONFIG_PATH важнее local.yaml.
func TestLoad_Priority_ENVWinsOverLocal(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, ".", "local.yaml", `
env: "local"
http: { host: "127.0.0.1", port: "7777" }
`)

	envPath := writeFile(t, dir, "from_env.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", envPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

// Явный путь важнее CONFIG_PATH и local.yaml.
func TestLoad_Priority_ExplicitWinsOverEnvAndLocal(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, ".", "local.yaml", `env: "local"`)
	t.Setenv("CONFIG_PATH", writeFile(t, dir, "env.yaml", minimalYAML))

	explicit := writeFile(t, dir, "explicit.yaml", `env: "dev"`)

	cfg, err := Load(explicit)
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
}

// ENV перекрывает значения из файла.
func TestLoad_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)
	t.Setenv("API_BASE_URL", "http://override:1/api")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "http://override:1/api", cfg.API.BaseURL)
}

func TestLoad_EnvOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "dev")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	require.Panics(t, func() { _ = MustLoad(cfgPath) })
}
