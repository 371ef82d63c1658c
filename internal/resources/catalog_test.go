package resources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/giantswarm/k7s/internal/k8s"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingDiscovery counts discovery calls and can inject failures.
type countingDiscovery struct {
	discovery.DiscoveryInterface
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (d *countingDiscovery) ServerGroupsAndResources() ([]*metav1.APIGroup, []*metav1.APIResourceList, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	groups, lists, err := d.DiscoveryInterface.ServerGroupsAndResources()
	if d.err != nil {
		return groups, lists, d.err
	}
	return groups, lists, err
}

func testResourceLists() []*metav1.APIResourceList {
	return []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "pods", SingularName: "pod", Kind: "Pod", Namespaced: true, ShortNames: []string{"po"}, Verbs: []string{"get", "list", "watch", "delete"}},
				{Name: "pods/log", Kind: "Pod", Namespaced: true, Verbs: []string{"get"}},
				{Name: "nodes", SingularName: "node", Kind: "Node", ShortNames: []string{"no"}, Verbs: []string{"get", "list", "watch"}},
				{Name: "persistentvolumeclaims", SingularName: "persistentvolumeclaim", Kind: "PersistentVolumeClaim", Namespaced: true, ShortNames: []string{"pvc"}, Verbs: []string{"get", "list"}},
			},
		},
		{
			GroupVersion: "apps/v1",
			APIResources: []metav1.APIResource{
				{Name: "deployments", SingularName: "deployment", Kind: "Deployment", Namespaced: true, ShortNames: []string{"deploy"}, Verbs: []string{"get", "list", "watch", "update", "patch", "delete"}},
			},
		},
		{
			GroupVersion: "example.com/v1",
			APIResources: []metav1.APIResource{
				{Name: "widgets", SingularName: "widget", Kind: "Widget", Namespaced: true, Verbs: []string{"get", "list"}},
			},
		},
		{
			GroupVersion: "example.com/v1beta1",
			APIResources: []metav1.APIResource{
				{Name: "widgets", SingularName: "widget", Kind: "Widget", Namespaced: true, Verbs: []string{"get", "list"}},
			},
		},
	}
}

func widgetCRD() *apiextensionsv1.CustomResourceDefinition {
	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: "widgets.example.com"},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: "example.com",
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: "widgets", Kind: "Widget"},
			Scope: apiextensionsv1.NamespaceScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{Name: "v1", Served: true},
				{Name: "v1beta1", Served: true, Storage: true},
			},
		},
	}
}

type catalogFixture struct {
	catalog    *Catalog
	discovery  *countingDiscovery
	extensions *apiextensionsfake.Clientset
}

func setupCatalog(t *testing.T, opts ...Option) *catalogFixture {
	t.Helper()

	clientset := fake.NewClientset()
	clientset.Resources = testResourceLists()
	disc := &countingDiscovery{DiscoveryInterface: clientset.Discovery()}
	extensions := apiextensionsfake.NewSimpleClientset(widgetCRD())

	registry := k8s.NewStaticRegistry("test", &k8s.ClusterClient{
		Context:       "test",
		Clientset:     clientset,
		Discovery:     disc,
		APIExtensions: extensions,
	})

	opts = append([]Option{WithLogger(newTestLogger())}, opts...)
	return &catalogFixture{
		catalog:    NewCatalog(registry, opts...),
		discovery:  disc,
		extensions: extensions,
	}
}

func TestCatalogAll(t *testing.T) {
	f := setupCatalog(t)

	types, err := f.catalog.All(context.Background(), "")
	require.NoError(t, err)

	var kinds []string
	for _, rt := range types {
		kinds = append(kinds, rt.Kind)
	}
	assert.Equal(t, []string{"Deployment", "Node", "PersistentVolumeClaim", "Pod", "Widget"}, kinds)

	widget, err := f.catalog.ByGroupAndName(context.Background(), "", "example.com", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "v1beta1", widget.StorageVersion)
	assert.True(t, widget.CustomResource)
	assert.Equal(t, schema.GroupVersionResource{Group: "example.com", Version: "v1beta1", Resource: "widgets"}, widget.GroupVersionResource())
}

func TestCatalogComputedOnceConcurrently(t *testing.T) {
	f := setupCatalog(t)
	f.discovery.delay = 20 * time.Millisecond

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			types, err := f.catalog.All(context.Background(), "test")
			assert.NoError(t, err)
			assert.Len(t, types, 5)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.discovery.calls.Load())

	_, err := f.catalog.All(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.discovery.calls.Load(), "empty context resolves to the cached default")
}

func TestCatalogInvalidate(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	_, err := f.catalog.All(ctx, "")
	require.NoError(t, err)
	f.catalog.Invalidate("")
	_, err = f.catalog.All(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.discovery.calls.Load())
}

func TestCatalogRefreshInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := setupCatalog(t, WithRefreshInterval(time.Minute), withClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := f.catalog.All(ctx, "")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = f.catalog.All(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.discovery.calls.Load())

	now = now.Add(31 * time.Second)
	_, err = f.catalog.All(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.discovery.calls.Load())
}

func TestCatalogPartialDiscoveryFailure(t *testing.T) {
	f := setupCatalog(t)
	f.discovery.err = &discovery.ErrGroupDiscoveryFailed{
		Groups: map[schema.GroupVersion]error{{Group: "metrics.k8s.io", Version: "v1beta1"}: errors.New("unavailable")},
	}

	types, err := f.catalog.All(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, types, 5)
}

func TestCatalogDiscoveryFailure(t *testing.T) {
	f := setupCatalog(t)
	f.discovery.err = errors.New("connection refused")

	_, err := f.catalog.All(context.Background(), "")
	require.Error(t, err)

	f.discovery.err = nil
	types, err := f.catalog.All(context.Background(), "")
	require.NoError(t, err, "failures are not cached")
	assert.Len(t, types, 5)
}

func TestCatalogCRDListFailureDegrades(t *testing.T) {
	f := setupCatalog(t)
	f.extensions.PrependReactor("list", "customresourcedefinitions", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("forbidden")
	})

	widget, err := f.catalog.ByGroupAndName(context.Background(), "", "example.com", "widgets")
	require.NoError(t, err)
	assert.False(t, widget.CustomResource)
	assert.Equal(t, "v1", widget.StorageVersion, "falls back to the version heuristic")
}

func TestCatalogLookups(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	t.Run("by group and name", func(t *testing.T) {
		rt, err := f.catalog.ByGroupAndName(ctx, "", "apps", "deployments")
		require.NoError(t, err)
		assert.Equal(t, "Deployment", rt.Kind)
	})

	t.Run("by group and kind is case-insensitive", func(t *testing.T) {
		rt, err := f.catalog.ByGroupAndKind(ctx, "", "", "pOD")
		require.NoError(t, err)
		assert.Equal(t, "pods", rt.Name)
	})

	t.Run("by name matches plural singular and short names", func(t *testing.T) {
		for _, name := range []string{"nodes", "node", "no", "NODES"} {
			rt, err := f.catalog.ByName(ctx, "", name)
			require.NoError(t, err, name)
			assert.Equal(t, "Node", rt.Kind, name)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.catalog.ByGroupAndName(ctx, "", "", "widgets")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = f.catalog.ByName(ctx, "", "gizmos")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown context", func(t *testing.T) {
		_, err := f.catalog.All(ctx, "other")
		assert.ErrorIs(t, err, k8s.ErrUnknownContext)
	})
}

func TestCatalogSearch(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	results, err := f.catalog.Search(ctx, "", "pvc")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "PersistentVolumeClaim", results[0].Kind)

	results, err = f.catalog.Search(ctx, "", "deploy")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Deployment", results[0].Kind)

	all, err := f.catalog.Search(ctx, "", "  ")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestPickPrefersStorageVersionServed(t *testing.T) {
	unserved := ResourceType{Group: "a.example.com", Name: "gadgets", StorageVersion: "v2", ServedVersions: []string{"v1"}}
	served := ResourceType{Group: "b.example.com", Name: "gadgets", StorageVersion: "v1", ServedVersions: []string{"v1"}}
	other := ResourceType{Group: "c.example.com", Name: "gadgets", StorageVersion: "v1", ServedVersions: []string{"v1"}}
	byName := func(rt ResourceType) bool { return rt.Name == "gadgets" }

	tests := []struct {
		name   string
		types  []ResourceType
		want   ResourceType
		wantOK bool
	}{
		{name: "served at storage version wins", types: []ResourceType{unserved, served}, want: served, wantOK: true},
		{name: "first of several served", types: []ResourceType{served, other}, want: served, wantOK: true},
		{name: "first when none served", types: []ResourceType{unserved}, want: unserved, wantOK: true},
		{name: "no match", types: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pick(tt.types, byName)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogSharedNames(t *testing.T) {
	clientset := fake.NewClientset()
	clientset.Resources = []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "events", SingularName: "event", Kind: "Event", Namespaced: true, Verbs: []string{"get", "list", "watch"}},
			},
		},
		{
			GroupVersion: "events.k8s.io/v1",
			APIResources: []metav1.APIResource{
				{Name: "events", SingularName: "event", Kind: "Event", Namespaced: true, Verbs: []string{"get", "list", "watch"}},
			},
		},
		{
			GroupVersion: "a.example.com/v1",
			APIResources: []metav1.APIResource{
				{Name: "gadgets", SingularName: "gadget", Kind: "Gadget", Namespaced: true, Verbs: []string{"get", "list"}},
			},
		},
		{
			GroupVersion: "b.example.com/v1",
			APIResources: []metav1.APIResource{
				{Name: "gadgets", SingularName: "gadget", Kind: "Gadget", Namespaced: true, Verbs: []string{"get", "list"}},
			},
		},
	}
	// a.example.com stores gadgets at a version it no longer serves.
	extensions := apiextensionsfake.NewSimpleClientset(&apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: "gadgets.a.example.com"},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: "a.example.com",
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: "gadgets", Kind: "Gadget"},
			Scope: apiextensionsv1.NamespaceScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{Name: "v1", Served: true},
				{Name: "v2", Served: false, Storage: true},
			},
		},
	})
	registry := k8s.NewStaticRegistry("test", &k8s.ClusterClient{
		Context:       "test",
		Clientset:     clientset,
		Discovery:     clientset.Discovery(),
		APIExtensions: extensions,
	})
	catalog := NewCatalog(registry, WithLogger(newTestLogger()))
	ctx := context.Background()

	rt, err := catalog.ByName(ctx, "", "gadgets")
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", rt.Group)

	rt, err = catalog.ByGroupAndKind(ctx, "", "a.example.com", "Gadget")
	require.NoError(t, err)
	assert.Equal(t, "v2", rt.StorageVersion, "an exact group still resolves")

	rt, err = catalog.ByName(ctx, "", "events")
	require.NoError(t, err)
	assert.Empty(t, rt.Group, "both are served at their storage version, catalog order decides")
}
