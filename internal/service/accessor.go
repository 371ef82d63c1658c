package service

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/resources"
)

// accessor performs the item operations of one resource type in one
// namespace scope.
type accessor interface {
	list(ctx context.Context, opts metav1.ListOptions) ([]runtime.Object, string, error)
	get(ctx context.Context, name string) (runtime.Object, error)
	delete(ctx context.Context, name string, opts metav1.DeleteOptions) error
	watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

// typedClient is the subset of a client-go typed resource client the service
// needs. Every generated PodInterface, NodeInterface and so on satisfies it.
type typedClient[T, L runtime.Object] interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (T, error)
	List(ctx context.Context, opts metav1.ListOptions) (L, error)
	Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

type typedAccessor[T, L runtime.Object] struct {
	client typedClient[T, L]
}

func (a typedAccessor[T, L]) list(ctx context.Context, opts metav1.ListOptions) ([]runtime.Object, string, error) {
	list, err := a.client.List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	return extractList(list)
}

func (a typedAccessor[T, L]) get(ctx context.Context, name string) (runtime.Object, error) {
	obj, err := a.client.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (a typedAccessor[T, L]) delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	return a.client.Delete(ctx, name, opts)
}

func (a typedAccessor[T, L]) watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	return a.client.Watch(ctx, opts)
}

// dynamicAccessor serves every type without a typed client, custom
// resources included.
type dynamicAccessor struct {
	client dynamic.ResourceInterface
}

func (a dynamicAccessor) list(ctx context.Context, opts metav1.ListOptions) ([]runtime.Object, string, error) {
	list, err := a.client.List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	objs := make([]runtime.Object, 0, len(list.Items))
	for i := range list.Items {
		objs = append(objs, &list.Items[i])
	}
	return objs, list.GetResourceVersion(), nil
}

func (a dynamicAccessor) get(ctx context.Context, name string) (runtime.Object, error) {
	obj, err := a.client.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (a dynamicAccessor) delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	return a.client.Delete(ctx, name, opts)
}

func (a dynamicAccessor) watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	return a.client.Watch(ctx, opts)
}

// extractList flattens a typed list into its items and resource version.
func extractList(list runtime.Object) ([]runtime.Object, string, error) {
	objs, err := meta.ExtractList(list)
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract list items: %w", err)
	}
	listMeta, err := meta.ListAccessor(list)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read list metadata: %w", err)
	}
	return objs, listMeta.GetResourceVersion(), nil
}

var (
	gvrPods                   = corev1.SchemeGroupVersion.WithResource("pods")
	gvrServices               = corev1.SchemeGroupVersion.WithResource("services")
	gvrNamespaces             = corev1.SchemeGroupVersion.WithResource("namespaces")
	gvrNodes                  = corev1.SchemeGroupVersion.WithResource("nodes")
	gvrConfigMaps             = corev1.SchemeGroupVersion.WithResource("configmaps")
	gvrSecrets                = corev1.SchemeGroupVersion.WithResource("secrets")
	gvrServiceAccounts        = corev1.SchemeGroupVersion.WithResource("serviceaccounts")
	gvrPersistentVolumes      = corev1.SchemeGroupVersion.WithResource("persistentvolumes")
	gvrPersistentVolumeClaims = corev1.SchemeGroupVersion.WithResource("persistentvolumeclaims")
	gvrIngresses              = networkingv1.SchemeGroupVersion.WithResource("ingresses")
	gvrDeployments            = appsv1.SchemeGroupVersion.WithResource("deployments")
)

// typedAccessorFor returns the typed client of gvr, if there is one. The
// version is part of the match so that a cluster storing a type in another
// version falls back to the dynamic client.
func typedAccessorFor(cs kubernetes.Interface, gvr schema.GroupVersionResource, namespace string) (accessor, bool) {
	switch gvr {
	case gvrPods:
		return typedAccessor[*corev1.Pod, *corev1.PodList]{cs.CoreV1().Pods(namespace)}, true
	case gvrServices:
		return typedAccessor[*corev1.Service, *corev1.ServiceList]{cs.CoreV1().Services(namespace)}, true
	case gvrNamespaces:
		return typedAccessor[*corev1.Namespace, *corev1.NamespaceList]{cs.CoreV1().Namespaces()}, true
	case gvrNodes:
		return typedAccessor[*corev1.Node, *corev1.NodeList]{cs.CoreV1().Nodes()}, true
	case gvrConfigMaps:
		return typedAccessor[*corev1.ConfigMap, *corev1.ConfigMapList]{cs.CoreV1().ConfigMaps(namespace)}, true
	case gvrSecrets:
		return typedAccessor[*corev1.Secret, *corev1.SecretList]{cs.CoreV1().Secrets(namespace)}, true
	case gvrServiceAccounts:
		return typedAccessor[*corev1.ServiceAccount, *corev1.ServiceAccountList]{cs.CoreV1().ServiceAccounts(namespace)}, true
	case gvrPersistentVolumes:
		return typedAccessor[*corev1.PersistentVolume, *corev1.PersistentVolumeList]{cs.CoreV1().PersistentVolumes()}, true
	case gvrPersistentVolumeClaims:
		return typedAccessor[*corev1.PersistentVolumeClaim, *corev1.PersistentVolumeClaimList]{cs.CoreV1().PersistentVolumeClaims(namespace)}, true
	case gvrIngresses:
		return typedAccessor[*networkingv1.Ingress, *networkingv1.IngressList]{cs.NetworkingV1().Ingresses(namespace)}, true
	case gvrDeployments:
		return typedAccessor[*appsv1.Deployment, *appsv1.DeploymentList]{cs.AppsV1().Deployments(namespace)}, true
	}
	return nil, false
}

// accessorFor picks the client for rt. An empty namespace addresses all
// namespaces; it is ignored for cluster scoped types.
func accessorFor(client *k8s.ClusterClient, rt resources.ResourceType, namespace string) accessor {
	if !rt.Namespaced {
		namespace = ""
	}
	gvr := rt.GroupVersionResource()
	if a, ok := typedAccessorFor(client.Clientset, gvr, namespace); ok {
		return a
	}
	if namespace == "" {
		return dynamicAccessor{client: client.Dynamic.Resource(gvr)}
	}
	return dynamicAccessor{client: client.Dynamic.Resource(gvr).Namespace(namespace)}
}
