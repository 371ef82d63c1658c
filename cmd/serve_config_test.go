package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadTestServeConfig parses args with the serve flags and loads the config.
func loadTestServeConfig(t *testing.T, args ...string) (ServeConfig, error) {
	t.Helper()
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags(args))

	v, err := newConfigViper(cmd)
	if err != nil {
		return ServeConfig{}, err
	}
	return loadServeConfig(v)
}

func TestLoadServeConfigDefaults(t *testing.T) {
	config, err := loadTestServeConfig(t)
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.HTTPAddr)
	assert.Equal(t, float32(20), config.Cluster.QPSLimit)
	assert.Equal(t, 30, config.Cluster.BurstLimit)
	assert.Equal(t, 30*time.Second, config.Cluster.Timeout)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, time.Minute, config.StatsTTL)
	assert.Equal(t, time.Minute, config.SweepInterval)
	assert.Zero(t, config.CatalogRefresh)
	assert.Equal(t, 5, config.ReconnectAttempts)
	assert.False(t, config.ReadOnly)
	assert.Empty(t, config.AllowedOrigins)
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, ":9090", config.Metrics.Addr)
}

func TestLoadServeConfigEnvironment(t *testing.T) {
	t.Setenv("K7S_HTTP_ADDR", ":9999")
	t.Setenv("K7S_READ_ONLY", "true")
	t.Setenv("K7S_STATS_TTL", "30s")
	t.Setenv("K7S_ALLOWED_ORIGINS", "https://dash.example.com,http://localhost:3000/")

	config, err := loadTestServeConfig(t)
	require.NoError(t, err)

	assert.Equal(t, ":9999", config.HTTPAddr)
	assert.True(t, config.ReadOnly)
	assert.Equal(t, 30*time.Second, config.StatsTTL)
	assert.Equal(t, []string{"https://dash.example.com", "http://localhost:3000"}, config.AllowedOrigins)
}

func TestLoadServeConfigFlagsWinOverEnvironment(t *testing.T) {
	t.Setenv("K7S_HTTP_ADDR", ":9999")

	config, err := loadTestServeConfig(t, "--http-addr", ":7000")
	require.NoError(t, err)
	assert.Equal(t, ":7000", config.HTTPAddr)
}

func TestLoadServeConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k7s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`http-addr: ":6000"
stats-ttl: 5m
read-only: true
reconnect-attempts: 2
`), 0o600))
	t.Setenv("K7S_STATS_TTL", "2m")

	config, err := loadTestServeConfig(t, "--config", path, "--reconnect-attempts", "0")
	require.NoError(t, err)

	assert.Equal(t, ":6000", config.HTTPAddr)
	assert.True(t, config.ReadOnly)
	assert.Equal(t, 2*time.Minute, config.StatsTTL, "environment wins over the file")
	assert.Zero(t, config.ReconnectAttempts, "flags win over the file")
}

func TestLoadServeConfigMissingFile(t *testing.T) {
	_, err := loadTestServeConfig(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func validServeConfig() ServeConfig {
	return ServeConfig{
		HTTPAddr: ":8080",
		Cluster: ClusterConfig{
			QPSLimit:   20,
			BurstLimit: 30,
			Timeout:    30 * time.Second,
		},
		Log:           LogConfig{Format: "json"},
		Metrics:       MetricsServeConfig{Enabled: true, Addr: ":9090"},
		StatsTTL:      time.Minute,
		SweepInterval: time.Minute,
	}
}

func TestServeConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *ServeConfig)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(*ServeConfig) {},
		},
		{
			name:    "missing http address",
			modify:  func(c *ServeConfig) { c.HTTPAddr = "" },
			wantErr: "http-addr is required",
		},
		{
			name:    "zero qps",
			modify:  func(c *ServeConfig) { c.Cluster.QPSLimit = 0 },
			wantErr: "qps-limit must be positive",
		},
		{
			name:    "negative burst",
			modify:  func(c *ServeConfig) { c.Cluster.BurstLimit = -1 },
			wantErr: "burst-limit must be positive",
		},
		{
			name:    "zero timeout",
			modify:  func(c *ServeConfig) { c.Cluster.Timeout = 0 },
			wantErr: "timeout must be positive",
		},
		{
			name: "in-cluster with kubeconfig",
			modify: func(c *ServeConfig) {
				c.Cluster.InCluster = true
				c.Cluster.Kubeconfig = "/tmp/config"
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "unknown log format",
			modify:  func(c *ServeConfig) { c.Log.Format = "logfmt" },
			wantErr: "unsupported log format",
		},
		{
			name:    "zero stats ttl",
			modify:  func(c *ServeConfig) { c.StatsTTL = 0 },
			wantErr: "stats-ttl must be positive",
		},
		{
			name:    "zero sweep interval",
			modify:  func(c *ServeConfig) { c.SweepInterval = 0 },
			wantErr: "sweep-interval must be positive",
		},
		{
			name:    "negative catalog refresh",
			modify:  func(c *ServeConfig) { c.CatalogRefresh = -time.Second },
			wantErr: "catalog-refresh must not be negative",
		},
		{
			name:    "negative reconnect attempts",
			modify:  func(c *ServeConfig) { c.ReconnectAttempts = -1 },
			wantErr: "reconnect-attempts must not be negative",
		},
		{
			name:    "metrics without address",
			modify:  func(c *ServeConfig) { c.Metrics.Addr = "" },
			wantErr: "metrics-addr is required",
		},
		{
			name:   "metrics disabled without address",
			modify: func(c *ServeConfig) { c.Metrics = MetricsServeConfig{} },
		},
		{
			name:    "origin with path",
			modify:  func(c *ServeConfig) { c.AllowedOrigins = []string{"https://dash.example.com/app"} },
			wantErr: "invalid allowed-origins",
		},
		{
			name:    "origin without scheme",
			modify:  func(c *ServeConfig) { c.AllowedOrigins = []string{"dash.example.com"} },
			wantErr: "invalid allowed-origins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validServeConfig()
			tt.modify(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"},
		splitOrigins([]string{"https://a.example.com, https://b.example.com", " ", "https://c.example.com"}))
	assert.Nil(t, splitOrigins(nil))
}
