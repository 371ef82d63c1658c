package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/resources"
)

// ClusterStats is the mean node utilization of a context. Both fields are
// nil when no node reported usage.
type ClusterStats struct {
	CPUPercentage    *int `json:"cpuPercentage"`
	MemoryPercentage *int `json:"memoryPercentage"`
}

var nodesType = resources.ResourceType{
	StorageVersion: "v1",
	Name:           "nodes",
	Kind:           resources.KindNode,
	Verbs:          []resources.Verb{resources.VerbGet, resources.VerbList, resources.VerbWatch},
}

// ClusterStats averages the %CPU and %Mem columns over the nodes of a
// context.
func (s *Service) ClusterStats(ctx context.Context, contextName string) ClusterStats {
	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationStats,
		Context:      contextName,
		ResourceType: nodesType.Name,
	})
	defer span.End()

	start := time.Now()
	nodes, err := s.listItems(ctx, nodesType, contextName, "", true)
	s.record(ctx, contextName, instrumentation.OperationStats, nodesType, "", start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.logger.Error("Failed to get cluster stats", logging.Context(contextName), logging.SanitizedErr(err))
		return ClusterStats{}
	}

	cpu := percentages(nodes.Items, "%CPU")
	mem := percentages(nodes.Items, "%Mem")
	if len(cpu) == 0 || len(mem) == 0 {
		return ClusterStats{}
	}
	cpuMean, memMean := mean(cpu), mean(mem)
	return ClusterStats{CPUPercentage: &cpuMean, MemoryPercentage: &memMean}
}

// percentages collects the integer values of a secondary column, skipping
// nodes that show n/a.
func percentages(list []items.ResourceItem, column string) []int {
	var out []int
	for _, item := range list {
		i := slices.IndexFunc(item.Secondary, func(v items.ItemValue) bool { return v.Name == column })
		if i < 0 {
			continue
		}
		if n, err := strconv.Atoi(item.Secondary[i].Value); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func mean(values []int) int {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum / len(values)
}

// RawItems returns the API server's JSON listing of rt across all namespaces.
func (s *Service) RawItems(ctx context.Context, rt resources.ResourceType, contextName string) ([]byte, error) {
	if !rt.IsListable() {
		return nil, fmt.Errorf("%s: %w", rt.Identifier(), ErrNotListable)
	}
	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationRaw,
		Context:      contextName,
		ResourceType: rt.Name,
	})
	defer span.End()

	client, err := s.clients.Client(contextName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := client.Clientset.CoreV1().RESTClient().Get().AbsPath(rawPath(rt)).DoRaw(ctx)
	s.record(ctx, contextName, instrumentation.OperationRaw, rt, "", start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to list %s: %w", rt.Identifier(), err)
	}
	return raw, nil
}

// rawPath is the collection URL of rt.
func rawPath(rt resources.ResourceType) string {
	if rt.Group == "" {
		return "/api/" + rt.StorageVersion + "/" + rt.Name
	}
	return "/apis/" + rt.Group + "/" + rt.StorageVersion + "/" + rt.Name
}
