package stats

import (
	statsv1alpha1 "k8s.io/kubelet/pkg/apis/stats/v1alpha1"
)

// Summaries maps node names to their kubelet summary. A nil summary marks a
// node whose fetch failed.
type Summaries map[string]*statsv1alpha1.Summary

// Empty reports whether no node has a summary.
func (s Summaries) Empty() bool {
	for _, summary := range s {
		if summary != nil {
			return false
		}
	}
	return true
}

// Node returns the summary of a node, or nil.
func (s Summaries) Node(name string) *statsv1alpha1.Summary {
	return s[name]
}

// Pod finds the stats of a pod and the name of the node reporting them.
func (s Summaries) Pod(namespace, name string) (*statsv1alpha1.PodStats, string) {
	for nodeName, summary := range s {
		if summary == nil {
			continue
		}
		for i := range summary.Pods {
			ref := summary.Pods[i].PodRef
			if ref.Namespace == namespace && ref.Name == name {
				if summary.Node.NodeName != "" {
					nodeName = summary.Node.NodeName
				}
				return &summary.Pods[i], nodeName
			}
		}
	}
	return nil, ""
}

// Volume finds the first volume stats entry backed by the given claim.
func (s Summaries) Volume(namespace, claimName string) *statsv1alpha1.VolumeStats {
	for _, summary := range s {
		if summary == nil {
			continue
		}
		for i := range summary.Pods {
			volumes := summary.Pods[i].VolumeStats
			for j := range volumes {
				ref := volumes[j].PVCRef
				if ref != nil && ref.Namespace == namespace && ref.Name == claimName {
					return &volumes[j]
				}
			}
		}
	}
	return nil
}
