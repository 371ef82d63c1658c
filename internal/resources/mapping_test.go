package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func apiResource(name, kind string, namespaced bool, verbs ...string) metav1.APIResource {
	return metav1.APIResource{Name: name, Kind: kind, Namespaced: namespaced, Verbs: verbs}
}

func TestLatestVersion(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{name: "empty", versions: nil, want: ""},
		{name: "single version returned unchanged", versions: []string{"v1alpha1"}, want: "v1alpha1"},
		{name: "stable beats beta", versions: []string{"v1beta1", "v1"}, want: "v1"},
		{name: "beta beats alpha", versions: []string{"v1alpha1", "v1beta1"}, want: "v1beta1"},
		{name: "highest stable", versions: []string{"v1", "v2", "v2beta1"}, want: "v2"},
		{name: "multi-digit majors compare numerically", versions: []string{"v9", "v10"}, want: "v10"},
		{name: "stable beats newer beta", versions: []string{"v2beta1", "v1"}, want: "v1"},
		{name: "beta minors compare numerically", versions: []string{"v1beta10", "v1beta2"}, want: "v1beta10"},
		{name: "kube-like beats arbitrary", versions: []string{"foo", "v1alpha1"}, want: "v1alpha1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LatestVersion(tt.versions))
		})
	}
}

func TestParseVerb(t *testing.T) {
	v, ok := ParseVerb("DELETE")
	assert.True(t, ok)
	assert.Equal(t, VerbDelete, v)

	v, ok = ParseVerb("deleteCollection")
	assert.True(t, ok)
	assert.Equal(t, VerbDeleteCollection, v)

	_, ok = ParseVerb("impersonate")
	assert.False(t, ok)
}

func TestMapResourceTypesGroupsVersions(t *testing.T) {
	discovered := []DiscoveredResource{
		{Group: "autoscaling", Version: "v1", Resource: apiResource("horizontalpodautoscalers", "HorizontalPodAutoscaler", true, "get", "list")},
		{Group: "autoscaling", Version: "v2", Resource: apiResource("horizontalpodautoscalers", "HorizontalPodAutoscaler", true, "get", "list", "watch")},
		{Group: "", Version: "v1", Resource: apiResource("pods", "Pod", true, "watch", "list", "get", "impersonate", "delete")},
		{Group: "", Version: "v1", Resource: apiResource("pods/log", "Pod", true, "get")},
	}

	types := MapResourceTypes(discovered, nil)
	require.Len(t, types, 2)

	hpa := types[0]
	assert.Equal(t, "HorizontalPodAutoscaler", hpa.Kind)
	assert.Equal(t, "v2", hpa.StorageVersion)
	assert.Equal(t, []string{"v1", "v2"}, hpa.ServedVersions)
	assert.Equal(t, []Verb{VerbGet, VerbList, VerbWatch}, hpa.Verbs)
	assert.False(t, hpa.CustomResource)

	pods := types[1]
	assert.Equal(t, "", pods.Group)
	assert.Equal(t, "pods", pods.Name)
	assert.Equal(t, []Verb{VerbGet, VerbList, VerbWatch, VerbDelete}, pods.Verbs)
	assert.True(t, pods.IsPod())
	assert.True(t, pods.HasStats())
}

func TestMapResourceTypesCRDStorageVersion(t *testing.T) {
	discovered := []DiscoveredResource{
		{Group: "example.com", Version: "v1", Resource: apiResource("widgets", "Widget", true, "list")},
		{Group: "example.com", Version: "v1beta1", Resource: apiResource("widgets", "Widget", true, "list")},
	}
	crds := []CustomResource{{
		Group:          "example.com",
		Plural:         "widgets",
		Kind:           "Widget",
		Namespaced:     true,
		StorageVersion: "v1beta1",
	}}

	types := MapResourceTypes(discovered, crds)
	require.Len(t, types, 1)
	assert.Equal(t, "v1beta1", types[0].StorageVersion)
	assert.True(t, types[0].CustomResource)
	assert.Equal(t, "widgets.example.com", types[0].Identifier())
}

func TestMapResourceTypesOptionalNames(t *testing.T) {
	res := apiResource("configmaps", "ConfigMap", true, "list")
	res.SingularName = "  "
	res.ShortNames = []string{}

	types := MapResourceTypes([]DiscoveredResource{{Version: "v1", Resource: res}}, nil)
	require.Len(t, types, 1)
	assert.Empty(t, types[0].SingularName)
	assert.Nil(t, types[0].ShortNames)

	res.SingularName = "configmap"
	res.ShortNames = []string{"cm"}
	types = MapResourceTypes([]DiscoveredResource{{Version: "v1", Resource: res}}, nil)
	assert.Equal(t, "configmap", types[0].SingularName)
	assert.Equal(t, []string{"cm"}, types[0].ShortNames)
}

func TestCustomResourceFromCRD(t *testing.T) {
	crd := apiextensionsv1.CustomResourceDefinition{
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: "example.com",
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: "gadgets", Kind: "Gadget"},
			Scope: apiextensionsv1.ClusterScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{Name: "v1", Served: true},
				{Name: "v1beta1", Served: true, Storage: true},
				{Name: "v1alpha1", Served: false},
			},
		},
	}

	cr := CustomResourceFromCRD(crd)
	assert.Equal(t, "v1beta1", cr.StorageVersion)
	assert.False(t, cr.Namespaced)
	assert.Equal(t, []string{"v1", "v1beta1"}, cr.ServedVersions)
}

func TestResourceTypeIdentity(t *testing.T) {
	a := ResourceType{Group: "apps", Name: "deployments", StorageVersion: "v1", Kind: "Deployment"}
	b := ResourceType{Group: "apps", Name: "deployments", StorageVersion: "v1beta2", Kind: "Deployment"}
	c := ResourceType{Group: "extensions", Name: "deployments", StorageVersion: "v1", Kind: "Deployment"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
}

func TestResourceTypePredicates(t *testing.T) {
	tests := []struct {
		name     string
		rt       ResourceType
		scalable bool
		loggable bool
		stats    bool
	}{
		{name: "pod", rt: ResourceType{Kind: "Pod"}, loggable: true, stats: true},
		{name: "node", rt: ResourceType{Kind: "Node"}, stats: true},
		{name: "pvc", rt: ResourceType{Kind: "PersistentVolumeClaim"}, stats: true},
		{name: "deployment", rt: ResourceType{Group: "apps", Kind: "Deployment"}, scalable: true, loggable: true},
		{name: "statefulset", rt: ResourceType{Group: "apps", Kind: "StatefulSet"}, scalable: true, loggable: true},
		{name: "daemonset", rt: ResourceType{Group: "apps", Kind: "DaemonSet"}, loggable: true},
		{name: "job", rt: ResourceType{Group: "batch", Kind: "Job"}, loggable: true},
		{name: "configmap", rt: ResourceType{Kind: "ConfigMap"}},
		{name: "crd named Pod", rt: ResourceType{Group: "example.com", Kind: "Pod", CustomResource: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.scalable, tt.rt.IsScalable())
			assert.Equal(t, tt.loggable, tt.rt.IsLoggable())
			assert.Equal(t, tt.stats, tt.rt.HasStats())
		})
	}

	watchable := ResourceType{Verbs: []Verb{VerbList, VerbWatch}}
	assert.True(t, watchable.IsWatchable())
	assert.True(t, watchable.IsListable())
	assert.False(t, watchable.IsDeletable())
}
