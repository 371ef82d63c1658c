package k8s

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/giantswarm/k7s/internal/logging"
)

// ErrUnknownContext is returned when a context name is not part of the
// loaded kubeconfig.
var ErrUnknownContext = errors.New("unknown kubeconfig context")

// ClusterClient bundles the clients bound to one kubeconfig context.
type ClusterClient struct {
	Context       string
	RestConfig    *rest.Config
	Clientset     kubernetes.Interface
	Dynamic       dynamic.Interface
	Discovery     discovery.DiscoveryInterface
	APIExtensions apiextensionsclient.Interface

	streaming *ClusterClient
}

// Streaming returns the clients for long-lived requests such as watches and
// followed logs. They carry no client timeout, since that also bounds reading
// a response body. Clients built without a streaming variant return
// themselves.
func (c *ClusterClient) Streaming() *ClusterClient {
	if c.streaming == nil {
		return c
	}
	return c.streaming
}

// ClientFactory builds the clients for a context from its rest config.
type ClientFactory func(contextName string, config *rest.Config) (*ClusterClient, error)

// RegistryConfig holds configuration for the cluster connection registry.
type RegistryConfig struct {
	// Kubeconfig settings. An empty path uses the client-go loading rules
	// (KUBECONFIG, then ~/.kube/config).
	KubeconfigPath string
	Context        string

	// InCluster forces service account authentication.
	InCluster bool

	// Performance settings
	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration

	Logger *slog.Logger

	// ClientFactory defaults to NewClusterClient.
	ClientFactory ClientFactory
}

// clientSlot holds the clients of one context once they are built. Callers
// for the same context wait for a single build; a failed build leaves the
// slot empty.
type clientSlot struct {
	mu     sync.Mutex
	client *ClusterClient
}

func (s *clientSlot) get(build func() (*ClusterClient, error)) (*ClusterClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := build()
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *clientSlot) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
}

// Registry owns one lazily constructed ClusterClient per kubeconfig context.
type Registry struct {
	config       *RegistryConfig
	logger       *slog.Logger
	loadingRules *clientcmd.ClientConfigLoadingRules

	inCluster      bool
	static         bool
	contexts       []string
	defaultContext string

	mu      sync.Mutex
	clients map[string]*clientSlot
}

// NewRegistry loads the kubeconfig (or the in-cluster environment) and
// returns a registry for its contexts. No client is created until first use.
func NewRegistry(config *RegistryConfig) (*Registry, error) {
	if config == nil {
		return nil, fmt.Errorf("registry configuration is required")
	}

	if config.QPSLimit == 0 {
		config.QPSLimit = DefaultQPSLimit
	}
	if config.BurstLimit == 0 {
		config.BurstLimit = DefaultBurstLimit
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout * time.Second
	}
	if config.ClientFactory == nil {
		config.ClientFactory = NewClusterClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		config:  config,
		logger:  logger,
		clients: make(map[string]*clientSlot),
	}

	if config.InCluster {
		if err := validateInClusterEnvironment(); err != nil {
			return nil, fmt.Errorf("in-cluster authentication not available: %w", err)
		}
		r.useInCluster()
		logger.Info("Using in-cluster authentication")
		return r, nil
	}

	if err := r.loadKubeconfig(); err != nil {
		return nil, err
	}

	if len(r.contexts) == 0 {
		if err := validateInClusterEnvironment(); err != nil {
			return nil, fmt.Errorf("kubeconfig has no contexts and in-cluster authentication is not available: %w", err)
		}
		r.useInCluster()
		logger.Info("Kubeconfig has no contexts, falling back to in-cluster authentication")
		return r, nil
	}

	logger.Info("Using kubeconfig authentication",
		logging.Context(r.defaultContext),
		slog.Int("contexts", len(r.contexts)))

	return r, nil
}

// NewStaticRegistry returns a registry over prebuilt clients. The first
// client is the default unless defaultContext names another one.
func NewStaticRegistry(defaultContext string, clients ...*ClusterClient) *Registry {
	r := &Registry{
		config:  &RegistryConfig{},
		logger:  slog.Default(),
		static:  true,
		clients: make(map[string]*clientSlot, len(clients)),
	}
	for _, c := range clients {
		r.contexts = append(r.contexts, c.Context)
		r.clients[c.Context] = &clientSlot{client: c}
	}
	slices.Sort(r.contexts)

	switch {
	case defaultContext != "":
		r.defaultContext = defaultContext
	case len(clients) > 0:
		r.defaultContext = clients[0].Context
	}
	return r
}

func (r *Registry) useInCluster() {
	r.inCluster = true
	r.contexts = []string{InClusterContext}
	r.defaultContext = InClusterContext
}

// loadKubeconfig reads the merged kubeconfig and records its contexts.
func (r *Registry) loadKubeconfig() error {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if r.config.KubeconfigPath != "" {
		rules.ExplicitPath = expandHome(r.config.KubeconfigPath)
	} else {
		for i, p := range rules.Precedence {
			rules.Precedence[i] = expandHome(p)
		}
	}
	r.loadingRules = rules

	rawConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules,
		&clientcmd.ConfigOverrides{},
	).RawConfig()
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	for name := range rawConfig.Contexts {
		r.contexts = append(r.contexts, name)
	}
	slices.Sort(r.contexts)

	switch {
	case r.config.Context != "":
		r.defaultContext = r.config.Context
	case rawConfig.CurrentContext != "":
		r.defaultContext = rawConfig.CurrentContext
	case len(r.contexts) > 0:
		r.defaultContext = r.contexts[0]
	}

	if r.defaultContext != "" && !slices.Contains(r.contexts, r.defaultContext) {
		return fmt.Errorf("context %q does not exist in kubeconfig: %w", r.defaultContext, ErrUnknownContext)
	}

	return nil
}

// Contexts returns the known context names, sorted.
func (r *Registry) Contexts() []string {
	return slices.Clone(r.contexts)
}

// DefaultContext returns the context used when callers pass an empty name.
func (r *Registry) DefaultContext() string {
	return r.defaultContext
}

// ResolveContext maps an empty context name to the default context.
func (r *Registry) ResolveContext(name string) string {
	if name == "" {
		return r.defaultContext
	}
	return name
}

// InCluster reports whether the registry authenticates with the pod's
// service account.
func (r *Registry) InCluster() bool {
	return r.inCluster
}

// Client returns the clients for a context, creating them on first use.
// Construction runs at most once per context; failures are not cached.
func (r *Registry) Client(contextName string) (*ClusterClient, error) {
	name := r.ResolveContext(contextName)
	if !slices.Contains(r.contexts, name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}

	r.mu.Lock()
	slot, ok := r.clients[name]
	if !ok {
		slot = &clientSlot{}
		r.clients[name] = slot
	}
	r.mu.Unlock()

	return slot.get(func() (*ClusterClient, error) {
		restConfig, err := r.restConfig(name)
		if err != nil {
			r.logger.Error("Failed to build rest config", logging.Context(name), logging.SanitizedErr(err))
			return nil, err
		}
		client, err := r.config.ClientFactory(name, restConfig)
		if err != nil {
			r.logger.Error("Failed to create cluster client", logging.Context(name), logging.SanitizedErr(err))
			return nil, fmt.Errorf("failed to create clients for context %q: %w", name, err)
		}
		r.logger.Debug("Created cluster client", logging.Context(name), logging.Host(restConfig.Host))
		return client, nil
	})
}

// Reset drops the cached clients of a context so the next Client call
// reconnects. Static registries keep their clients.
func (r *Registry) Reset(contextName string) {
	if r.static {
		return
	}
	name := r.ResolveContext(contextName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.clients[name]; ok {
		slot.reset()
	}
}

// restConfig returns the rest config for a context with rate limits and the
// request timeout applied. Streaming clients drop the timeout.
func (r *Registry) restConfig(contextName string) (*rest.Config, error) {
	var (
		restConfig *rest.Config
		err        error
	)

	if r.inCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster rest config: %w", err)
		}
	} else {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			r.loadingRules,
			&clientcmd.ConfigOverrides{CurrentContext: contextName},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create rest config for context %q: %w", contextName, err)
		}
	}

	restConfig.QPS = r.config.QPSLimit
	restConfig.Burst = r.config.BurstLimit
	restConfig.Timeout = r.config.Timeout

	return restConfig, nil
}

// NewClusterClient is the default ClientFactory. When config has a timeout,
// a second set of clients without it serves Streaming.
func NewClusterClient(contextName string, config *rest.Config) (*ClusterClient, error) {
	client, err := newClients(contextName, config)
	if err != nil {
		return nil, err
	}
	if config.Timeout == 0 {
		return client, nil
	}

	streamConfig := rest.CopyConfig(config)
	streamConfig.Timeout = 0
	client.streaming, err = newClients(contextName, streamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming clients: %w", err)
	}
	return client, nil
}

func newClients(contextName string, config *rest.Config) (*ClusterClient, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	extensions, err := apiextensionsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	return &ClusterClient{
		Context:       contextName,
		RestConfig:    config,
		Clientset:     clientset,
		Dynamic:       dynamicClient,
		Discovery:     clientset.Discovery(),
		APIExtensions: extensions,
	}, nil
}

// validateInClusterEnvironment checks that the service account files exist.
func validateInClusterEnvironment() error {
	for _, p := range []string{DefaultTokenPath, DefaultCACertPath, DefaultNamespacePath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("service account file not found at %s", p)
		}
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
