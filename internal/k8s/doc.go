// Package k8s is the cluster connection registry.
//
// A Registry is built from the kubeconfig loading rules (or the pod's service
// account) and hands out one ClusterClient per context. A ClusterClient
// bundles the typed clientset, the dynamic client, the discovery client and
// the apiextensions client for that context. Clients are created on first use
// and cached for the life of the process:
//
//	registry, err := k8s.NewRegistry(&k8s.RegistryConfig{})
//	if err != nil {
//		return err
//	}
//	client, err := registry.Client("") // default context
//
// Every rest config gets the configured QPS, burst and timeout limits.
package k8s
