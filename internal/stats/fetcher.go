package stats

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	statsv1alpha1 "k8s.io/kubelet/pkg/apis/stats/v1alpha1"

	"github.com/giantswarm/k7s/internal/k8s"
)

// Fetcher retrieves kubelet summaries.
type Fetcher interface {
	// NodeNames lists the nodes of a context.
	NodeNames(ctx context.Context, contextName string) ([]string, error)
	// Summary fetches the stats summary of one node.
	Summary(ctx context.Context, contextName, nodeName string) (*statsv1alpha1.Summary, error)
}

// ClientResolver hands out the clients of a kubeconfig context.
type ClientResolver interface {
	Client(contextName string) (*k8s.ClusterClient, error)
}

// ClusterFetcher reads summaries through the API server's node proxy.
type ClusterFetcher struct {
	clients ClientResolver
}

// NewClusterFetcher returns a Fetcher that talks to the clusters of clients.
func NewClusterFetcher(clients ClientResolver) *ClusterFetcher {
	return &ClusterFetcher{clients: clients}
}

func (f *ClusterFetcher) NodeNames(ctx context.Context, contextName string) ([]string, error) {
	client, err := f.clients.Client(contextName)
	if err != nil {
		return nil, err
	}
	nodes, err := client.Clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	names := make([]string, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		names = append(names, n.Name)
	}
	return names, nil
}

func (f *ClusterFetcher) Summary(ctx context.Context, contextName, nodeName string) (*statsv1alpha1.Summary, error) {
	client, err := f.clients.Client(contextName)
	if err != nil {
		return nil, err
	}

	raw, err := client.Clientset.CoreV1().RESTClient().
		Get().
		AbsPath("/api/v1/nodes", nodeName, "proxy", "stats", "summary").
		DoRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats summary of node %q: %w", nodeName, err)
	}

	var summary statsv1alpha1.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode stats summary of node %q: %w", nodeName, err)
	}
	return &summary, nil
}
