package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "TaskPulse", cfg.App.Name)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.JWT.ExpiresIn)
	assert.Equal(t, 720*time.Hour, cfg.JWT.RefreshExpiresIn)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, uint32(5), cfg.AI.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ReportTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/pulse.db")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("AI_TIMEOUT", "2s")
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/pulse.db", cfg.Database.GetDSN())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.AI.Timeout)
	assert.Equal(t, ProviderOllama, cfg.AI.Provider)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "unsupported database driver"},
		{"default secret in production", map[string]string{"APP_ENVIRONMENT": "production"}, "JWT secret"},
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}, "server port"},
		{"ai timeout too long", map[string]string{"AI_TIMEOUT": "10s"}, "ai timeout"},
		{"unknown provider", map[string]string{"AI_PROVIDER": "bard"}, "ai provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.GetDSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", cfg.GetMigrationURL())
}
