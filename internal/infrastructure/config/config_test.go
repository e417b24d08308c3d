package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tomlViper(t *testing.T, body string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(body)))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "agrosupply-ledger", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "agrosupply", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "agro:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.HistoryCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.IdempotencyTTL)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, "agrosupply-ledger", cfg.Telemetry.ServiceName)
	assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
	assert.Empty(t, cfg.HTTP.CORSAllowOrigins)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodySize)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RequestTimeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AGRO_APP_PORT", "9000")
	t.Setenv("AGRO_DATABASE_HOST", "db.internal")
	t.Setenv("AGRO_DATABASE_PASSWORD", "s3cret")
	t.Setenv("AGRO_REDIS_ENABLED", "true")
	t.Setenv("AGRO_LEDGER_HISTORY_CACHE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Ledger.HistoryCacheTTL)
}

func TestFromViper_FileValues(t *testing.T) {
	v := tomlViper(t, `
[app]
name = "shop-ledger"

[database]
max_open_conns = 10
max_idle_conns = 2

[telemetry]
enabled = true
sampling_ratio = 0.25
`)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "shop-ledger", cfg.App.Name)
	assert.Equal(t, "shop-ledger", cfg.Telemetry.ServiceName)
	assert.Equal(t, "shop-ledger", cfg.Profiling.ApplicationName)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.25, cfg.Telemetry.SamplingRatio)
}

func TestFromViper_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "idle exceeds open",
			body:    "[database]\nmax_open_conns = 2\nmax_idle_conns = 5\n",
			wantErr: "max_idle_conns",
		},
		{
			name:    "sampling ratio out of range",
			body:    "[telemetry]\nsampling_ratio = 1.5\n",
			wantErr: "sampling_ratio",
		},
		{
			name:    "profiling without server",
			body:    "[profiling]\nenabled = true\n",
			wantErr: "profiling.server_address",
		},
		{
			name:    "production without password",
			body:    "[app]\nenv = \"production\"\n[database]\nsslmode = \"require\"\n",
			wantErr: "database.password",
		},
		{
			name:    "production without tls",
			body:    "[app]\nenv = \"production\"\n[database]\npassword = \"p\"\n",
			wantErr: "sslmode",
		},
		{
			name:    "production wildcard cors",
			body:    "[app]\nenv = \"production\"\n[database]\npassword = \"p\"\nsslmode = \"require\"\n[http]\ncors_allow_origins = [\"*\"]\n",
			wantErr: "cors_allow_origins",
		},
		{
			name:    "production full sql tracing",
			body:    "[app]\nenv = \"production\"\n[database]\npassword = \"p\"\nsslmode = \"require\"\n[telemetry]\ndb_log_full_sql = true\n",
			wantErr: "db_log_full_sql",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromViper(tomlViper(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromViper_ProductionAccepted(t *testing.T) {
	cfg, err := FromViper(tomlViper(t, `
[app]
env = "production"
[database]
password = "p"
sslmode = "verify-full"
[http]
cors_allow_origins = ["https://shop.example.com"]
`))
	require.NoError(t, err)
	assert.True(t, cfg.App.IsProduction())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "ledger", Password: "p@ss/word", DBName: "agrosupply", SSLMode: "disable"}
	assert.Equal(t, "postgres://ledger:p%40ss%2Fword@db:5432/agrosupply?sslmode=disable", d.DSN())
}
