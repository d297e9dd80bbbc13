package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 5001, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:5001", cfg.Server.Addr())
	require.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "mongo", cfg.Store.Driver)
	require.Equal(t, "campaigns", cfg.Mongo.Database)
	require.Equal(t, 30*time.Second, cfg.Mongo.Timeout)
	require.Equal(t, 60*time.Second, cfg.WS.PongWait)
	require.Equal(t, 54*time.Second, cfg.WS.PingPeriod())
	require.False(t, cfg.Auth.Enabled())
	require.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost/db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STRICT_ADDRESSES", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "postgres://u:p@localhost/db", cfg.DB.DSN)
	require.True(t, cfg.Auth.Enabled())
	require.True(t, cfg.Chat.StrictAddresses)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_DRIVER=badger\nBADGER_PATH=/tmp/chat\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORE_DRIVER")
		os.Unsetenv("BADGER_PATH")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.Store.Driver)
	require.Equal(t, "/tmp/chat", cfg.Badger.Path)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: badger
badger:
  in_memory: true
  path: ""
redis:
  enabled: true
  channel: custom
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.Store.Driver)
	require.True(t, cfg.Badger.InMemory)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "custom", cfg.Redis.Channel)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid config")
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load("")
	require.ErrorContains(t, err, "DB_DSN")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
