package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/server"
	"github.com/giantswarm/k7s/internal/server/middleware"
)

// envPrefix prefixes every environment variable read by the CLI.
const envPrefix = "K7S"

// Defaults of the serve command.
const (
	defaultHTTPAddr          = ":8080"
	defaultStatsTTL          = time.Minute
	defaultSweepInterval     = time.Minute
	defaultReconnectAttempts = 5
)

// ClusterConfig selects the kubeconfig and client limits. Every command that
// talks to a cluster shares it.
type ClusterConfig struct {
	Kubeconfig string
	Context    string
	InCluster  bool
	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration
}

// LogConfig controls the process logger.
type LogConfig struct {
	Debug  bool
	Format string
}

// MetricsServeConfig holds the dedicated metrics server settings.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	HTTPAddr string

	Cluster ClusterConfig
	Log     LogConfig
	Metrics MetricsServeConfig

	// Cache and watch tuning
	StatsTTL          time.Duration
	SweepInterval     time.Duration
	CatalogRefresh    time.Duration
	ReconnectAttempts int

	// ReadOnly rejects scale and delete requests.
	ReadOnly bool

	// Browser security
	AllowedOrigins []string
	EnableHSTS     bool
}

// addClusterFlags registers the flags of ClusterConfig and LogConfig.
func addClusterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Optional YAML config file")
	flags.String("kubeconfig", "", "Path to the kubeconfig file (default: KUBECONFIG or ~/.kube/config)")
	flags.String("context", "", "Kubeconfig context to use by default (default: the current context)")
	flags.Bool("in-cluster", false, "Use in-cluster authentication (service account token) instead of kubeconfig")
	flags.Float32("qps-limit", k8s.DefaultQPSLimit, "QPS limit for Kubernetes API calls")
	flags.Int("burst-limit", k8s.DefaultBurstLimit, "Burst limit for Kubernetes API calls")
	flags.Duration("timeout", k8s.DefaultTimeout*time.Second, "Timeout for unary Kubernetes API calls (watches and followed logs are not bounded)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-format", logging.FormatText, "Log format: text or json")
}

// addServeFlags registers the flags of ServeConfig.
func addServeFlags(flags *pflag.FlagSet) {
	addClusterFlags(flags)
	flags.String("http-addr", defaultHTTPAddr, "HTTP listen address of the dashboard API")
	flags.Duration("stats-ttl", defaultStatsTTL, "How long kubelet statistics are cached")
	flags.Duration("sweep-interval", defaultSweepInterval, "How often closed watch sessions are reaped")
	flags.Duration("catalog-refresh", 0, "Rediscover resource types after this long (0 keeps them until refreshed)")
	flags.Int("reconnect-attempts", defaultReconnectAttempts, "Reconnect attempts of a broken watch before giving up")
	flags.Bool("read-only", false, "Reject scale and delete requests")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to call the API from a browser (comma-separated)")
	flags.Bool("enable-hsts", false, "Send Strict-Transport-Security even without TLS (behind a TLS proxy)")
	flags.Bool("metrics-enabled", true, "Serve Prometheus metrics on a dedicated port when instrumentation is enabled")
	flags.String("metrics-addr", server.DefaultMetricsAddr, "Listen address of the metrics server")
}

// newConfigViper binds the command flags and K7S_* environment variables
// and reads the optional config file. Flags win over the environment, which
// wins over the file.
func newConfigViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

func loadClusterConfig(v *viper.Viper) ClusterConfig {
	return ClusterConfig{
		Kubeconfig: v.GetString("kubeconfig"),
		Context:    v.GetString("context"),
		InCluster:  v.GetBool("in-cluster"),
		QPSLimit:   float32(v.GetFloat64("qps-limit")),
		BurstLimit: v.GetInt("burst-limit"),
		Timeout:    v.GetDuration("timeout"),
	}
}

func loadLogConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Debug:  v.GetBool("debug"),
		Format: v.GetString("log-format"),
	}
}

// loadServeConfig reads a ServeConfig from v and validates it.
func loadServeConfig(v *viper.Viper) (ServeConfig, error) {
	config := ServeConfig{
		HTTPAddr: v.GetString("http-addr"),
		Cluster:  loadClusterConfig(v),
		Log:      loadLogConfig(v),
		Metrics: MetricsServeConfig{
			Enabled: v.GetBool("metrics-enabled"),
			Addr:    v.GetString("metrics-addr"),
		},
		StatsTTL:          v.GetDuration("stats-ttl"),
		SweepInterval:     v.GetDuration("sweep-interval"),
		CatalogRefresh:    v.GetDuration("catalog-refresh"),
		ReconnectAttempts: v.GetInt("reconnect-attempts"),
		ReadOnly:          v.GetBool("read-only"),
		AllowedOrigins:    splitOrigins(v.GetStringSlice("allowed-origins")),
		EnableHSTS:        v.GetBool("enable-hsts"),
	}
	if err := config.Validate(); err != nil {
		return ServeConfig{}, err
	}
	return config, nil
}

// splitOrigins accepts both repeated values and a comma-separated string,
// which is how an environment variable arrives.
func splitOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

// Validate checks the cluster settings.
func (c ClusterConfig) Validate() error {
	if c.QPSLimit <= 0 {
		return fmt.Errorf("qps-limit must be positive, got %v", c.QPSLimit)
	}
	if c.BurstLimit <= 0 {
		return fmt.Errorf("burst-limit must be positive, got %d", c.BurstLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.InCluster && c.Kubeconfig != "" {
		return errors.New("--in-cluster and --kubeconfig are mutually exclusive")
	}
	return nil
}

// Validate checks the logger settings.
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", logging.FormatText, logging.FormatJSON:
		return nil
	}
	return fmt.Errorf("unsupported log format %q (expected %q or %q)", c.Format, logging.FormatText, logging.FormatJSON)
}

// Validate checks the whole serve configuration.
func (c *ServeConfig) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http-addr is required")
	}
	if err := c.Cluster.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.StatsTTL <= 0 {
		return fmt.Errorf("stats-ttl must be positive, got %v", c.StatsTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive, got %v", c.SweepInterval)
	}
	if c.CatalogRefresh < 0 {
		return fmt.Errorf("catalog-refresh must not be negative, got %v", c.CatalogRefresh)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect-attempts must not be negative, got %d", c.ReconnectAttempts)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics-addr is required when the metrics server is enabled")
	}

	origins, err := middleware.ParseAllowedOrigins(c.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("invalid allowed-origins: %w", err)
	}
	c.AllowedOrigins = origins
	return nil
}
