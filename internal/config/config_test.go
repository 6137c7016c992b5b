package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "erp-approvals", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Storage.SeedUsers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("DB_MAX_CONN_LIFETIME", "5m")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("MEMORY_SEED_USERS", "u-sales, u-manager,,u-director")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Database.MaxConnTime)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, []string{"u-sales", "u-manager", "u-director"}, cfg.Storage.SeedUsers)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "bad port",
			env:  map[string]string{"JWT_SECRET": "s", "HTTP_PORT": "eighty"},
			want: "HTTP_PORT",
		},
		{
			name: "bad duration",
			env:  map[string]string{"JWT_SECRET": "s", "HTTP_READ_TIMEOUT": "soon"},
			want: "HTTP_READ_TIMEOUT",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "mongo"},
			want: "STORAGE_DRIVER",
		},
		{
			name: "missing secret",
			env:  map[string]string{"JWT_SECRET": ""},
			want: "JWT_SECRET",
		},
		{
			name: "pool bounds",
			env:  map[string]string{"JWT_SECRET": "s", "DB_MIN_CONNS": "50", "DB_MAX_CONNS": "10"},
			want: "DB_MIN_CONNS",
		},
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

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "erp", Password: "pw", Database: "erp", SSLMode: "disable"}
	assert.Equal(t, "postgres://erp:pw@db:5432/erp?sslmode=disable", d.DSN())
}
