package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "url wins",
			cfg:  DatabaseConfig{URL: "postgres://u:p@db:5432/x", Host: "ignored"},
			want: "postgres://u:p@db:5432/x",
		},
		{
			name: "fields with default sslmode",
			cfg:  DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "pw", Name: "console"},
			want: "postgres://postgres:pw@localhost:5432/console?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"manager"}, cfg.Approval.DefaultApproverRoles)
	assert.Equal(t, "admin", cfg.Approval.AdminRole)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Notification.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APPROVAL_ADMIN_ROLE", "superuser")
	t.Setenv("WORKER_POOL_SIZE", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "superuser", cfg.Approval.AdminRole)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
}

func TestValidate(t *testing.T) {
	base := Config{
		Server:   ServerConfig{Mode: "release"},
		Auth:     AuthConfig{JWTSecret: "s3cret"},
		Worker:   WorkerConfig{PoolSize: 1},
		Approval: ApprovalConfig{DefaultApproverRoles: []string{"manager"}},
	}
	require.NoError(t, base.Validate())

	noSecret := base
	noSecret.Auth.JWTSecret = ""
	assert.Error(t, noSecret.Validate())

	noPool := base
	noPool.Worker.PoolSize = 0
	assert.Error(t, noPool.Validate())

	noRoles := base
	noRoles.Approval.DefaultApproverRoles = nil
	assert.Error(t, noRoles.Validate())
}
