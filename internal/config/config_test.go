package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoad_LayersYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  http_addr: ":9000"
database:
  driver: postgres
  lock_timeout: 3s
checkout:
  timezone: Asia/Tokyo
security:
  jwt_secret: from-base
`)
	writeFile(t, dir, "prod.yaml", `
database:
  dsn: postgres://prod
kafka:
  brokers: "k1:9092, ,k2:9092"
`)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ORDERCORE_SECURITY__JWT_SECRET", "from-env")
	t.Setenv("ORDERCORE_CHECKOUT__MAX_ATTEMPTS", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, "postgres://prod", cfg.Database.DSN)
	assert.Equal(t, 3*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, 7, cfg.Checkout.MaxAttempts)
	assert.Equal(t, "Asia/Tokyo", cfg.Checkout.Location().String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.BrokerList())

	// 未指定は既定値
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Security.AccessTTL)
}

func TestLoad_DatabaseURLWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
database:
  dsn: postgres://yaml
security:
  jwt_secret: s
`)
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Database.Driver = "memory"
		c.Security.JWTSecret = "s"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.Security.JWTSecret = "" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"zero lock timeout", func(c *Config) { c.Database.LockTimeout = 0 }},
		{"zero attempts", func(c *Config) { c.Checkout.MaxAttempts = 0 }},
		{"bad timezone", func(c *Config) { c.Checkout.Timezone = "Mars/Olympus" }},
		{"zero batch", func(c *Config) { c.Outbox.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
