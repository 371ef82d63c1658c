package items

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/stats"
)

// strategy computes the columns of one kind.
type strategy func(obj runtime.Object, summaries stats.Summaries) (columns, error)

// typed adapts a column function over a concrete API type.
func typed[T any](fn func(*T, stats.Summaries) columns) strategy {
	return func(obj runtime.Object, summaries stats.Summaries) (columns, error) {
		typedObj, err := convert[T](obj)
		if err != nil {
			return columns{}, err
		}
		return fn(typedObj, summaries), nil
	}
}

// convert returns obj as *T, converting unstructured content when needed.
func convert[T any](obj runtime.Object) (*T, error) {
	if t, ok := any(obj).(*T); ok {
		return t, nil
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return nil, fmt.Errorf("unexpected object type %T", obj)
	}
	out := new(T)
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.UnstructuredContent(), out); err != nil {
		return nil, fmt.Errorf("failed to convert %s %s: %w", u.GetKind(), u.GetName(), err)
	}
	return out, nil
}

// Mapper turns cluster objects into ResourceItems.
type Mapper struct {
	strategies map[Kind]strategy
}

func NewMapper() *Mapper {
	return &Mapper{
		strategies: map[Kind]strategy{
			KindPod:                   typed(podColumns),
			KindService:               typed(serviceColumns),
			KindIngress:               typed(ingressColumns),
			KindDeployment:            typed(deploymentColumns),
			KindConfigMap:             typed(configMapColumns),
			KindSecret:                typed(secretColumns),
			KindNode:                  typed(nodeColumns),
			KindPersistentVolume:      typed(persistentVolumeColumns),
			KindPersistentVolumeClaim: typed(persistentVolumeClaimColumns),
		},
	}
}

// Map builds the item for obj. summaries may be nil; usage columns then show
// "n/a". Kinds without a strategy get only the common fields.
func (m *Mapper) Map(kind Kind, obj runtime.Object, summaries stats.Summaries) (ResourceItem, error) {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return ResourceItem{}, fmt.Errorf("failed to read object metadata: %w", err)
	}

	item := ResourceItem{
		Name:              accessor.GetName(),
		Namespace:         accessor.GetNamespace(),
		CreationTimestamp: accessor.GetCreationTimestamp().Time,
		Highlighted:       []ItemValue{},
		Secondary:         []ItemValue{},
	}

	fn, ok := m.strategies[kind]
	if !ok {
		return item, nil
	}
	cols, err := fn(obj, summaries)
	if err != nil {
		return ResourceItem{}, err
	}
	if cols.highlighted != nil {
		item.Highlighted = cols.highlighted
	}
	if cols.secondary != nil {
		item.Secondary = cols.secondary
	}
	item.Pod = cols.pod
	return item, nil
}

// MapList maps every object, stopping at the first failure.
func (m *Mapper) MapList(kind Kind, objs []runtime.Object, summaries stats.Summaries) ([]ResourceItem, error) {
	out := make([]ResourceItem, 0, len(objs))
	for _, obj := range objs {
		item, err := m.Map(kind, obj, summaries)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// MapResourceTypes builds the resource type catalog entries from discovery
// output and custom resource definitions.
func (m *Mapper) MapResourceTypes(discovered []resources.DiscoveredResource, crds []resources.CustomResource) []resources.ResourceType {
	return resources.MapResourceTypes(discovered, crds)
}
