package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/stats"
)

// ResourceItems is one listing of a resource type.
type ResourceItems struct {
	ResourceVersion string               `json:"resourceVersion"`
	Items           []items.ResourceItem `json:"items"`
}

// ListItems lists and maps the items of rt in namespace, or in all
// namespaces when namespace is empty. Stats are attached for Pods, Nodes and
// PersistentVolumeClaims. Failures are logged and yield nil.
func (s *Service) ListItems(ctx context.Context, rt resources.ResourceType, contextName, namespace string) *ResourceItems {
	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationList,
		Context:      contextName,
		ResourceType: rt.Name,
		Namespace:    namespace,
	})
	defer span.End()

	start := time.Now()
	result, err := s.listItems(ctx, rt, contextName, namespace, true)
	s.record(ctx, contextName, instrumentation.OperationList, rt, namespace, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logging.WithOperation(s.logger, instrumentation.OperationList).Error("Failed to list items",
			logging.Context(contextName),
			logging.ResourceType(rt.Identifier()),
			logging.Namespace(namespace),
			logging.SanitizedErr(err))
		return nil
	}

	span.SetAttributes(instrumentation.ItemCount(len(result.Items)))
	instrumentation.SetSpanSuccess(span)
	return result
}

// listItems lists, sorts and maps the items of rt.
func (s *Service) listItems(ctx context.Context, rt resources.ResourceType, contextName, namespace string, withStats bool) (*ResourceItems, error) {
	client, err := s.clients.Client(contextName)
	if err != nil {
		return nil, err
	}

	objs, resourceVersion, err := accessorFor(client, rt, namespace).list(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", rt.Identifier(), err)
	}
	if err := sortObjects(rt, objs); err != nil {
		return nil, err
	}

	var summaries stats.Summaries
	if withStats {
		summaries = s.summariesFor(ctx, rt, contextName, objs)
	}

	mapped, err := s.mapper.MapList(items.KindOf(rt.Group, rt.Kind), objs, summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", rt.Identifier(), err)
	}

	return &ResourceItems{ResourceVersion: resourceVersion, Items: mapped}, nil
}

// summariesFor returns the stats for a listing of rt. Nodes are fetched by
// name so that no extra node list is needed.
func (s *Service) summariesFor(ctx context.Context, rt resources.ResourceType, contextName string, objs []runtime.Object) stats.Summaries {
	if s.stats == nil || !rt.HasStats() {
		return nil
	}

	var nodeNames []string
	if rt.IsNode() {
		nodeNames = make([]string, 0, len(objs))
		for _, obj := range objs {
			if m, err := meta.Accessor(obj); err == nil {
				nodeNames = append(nodeNames, m.GetName())
			}
		}
		if len(nodeNames) == 0 {
			return nil
		}
	}

	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationStats,
		Context:      contextName,
		ResourceType: rt.Name,
	})
	defer span.End()
	return s.stats.Get(ctx, contextName, nodeNames, false)
}

// sortKey orders items by namespace then name. PersistentVolumes are ordered
// by the claim they are bound to first.
type sortKey struct {
	primary   string
	namespace string
	name      string
}

func sortObjects(rt resources.ResourceType, objs []runtime.Object) error {
	keys := make(map[runtime.Object]sortKey, len(objs))
	for _, obj := range objs {
		m, err := meta.Accessor(obj)
		if err != nil {
			return fmt.Errorf("failed to read object metadata: %w", err)
		}
		key := sortKey{namespace: m.GetNamespace(), name: m.GetName()}
		if rt.Group == "" && rt.Kind == "PersistentVolume" {
			key.primary = claimName(obj)
		}
		keys[obj] = key
	}

	slices.SortStableFunc(objs, func(a, b runtime.Object) int {
		ka, kb := keys[a], keys[b]
		return cmp.Or(
			cmp.Compare(ka.primary, kb.primary),
			cmp.Compare(ka.namespace, kb.namespace),
			cmp.Compare(ka.name, kb.name),
		)
	})
	return nil
}

func claimName(obj runtime.Object) string {
	switch pv := obj.(type) {
	case *corev1.PersistentVolume:
		if pv.Spec.ClaimRef != nil {
			return pv.Spec.ClaimRef.Name
		}
	case *unstructured.Unstructured:
		name, _, _ := unstructured.NestedString(pv.Object, "spec", "claimRef", "name")
		return name
	}
	return ""
}

// indexOf returns the position of the item with the given key, or -1.
func indexOf(list []items.ResourceItem, key string) int {
	return slices.IndexFunc(list, func(item items.ResourceItem) bool {
		return item.Key() == key
	})
}

// Namespaces returns the sorted namespace names of a context. Failures are
// logged and yield nil.
func (s *Service) Namespaces(ctx context.Context, contextName string) []string {
	contextName = s.clients.ResolveContext(contextName)
	client, err := s.clients.Client(contextName)
	if err != nil {
		s.logger.Error("Failed to resolve context", logging.Context(contextName), logging.Err(err))
		return nil
	}

	list, err := client.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("Failed to list namespaces", logging.Context(contextName), logging.SanitizedErr(err))
		return nil
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	slices.Sort(names)
	return names
}
