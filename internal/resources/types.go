package resources

import (
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Verb is an API verb a resource type supports.
type Verb string

// Verbs in their canonical order.
const (
	VerbCreate           Verb = "create"
	VerbGet              Verb = "get"
	VerbList             Verb = "list"
	VerbWatch            Verb = "watch"
	VerbUpdate           Verb = "update"
	VerbPatch            Verb = "patch"
	VerbDelete           Verb = "delete"
	VerbDeleteCollection Verb = "deletecollection"
)

var allVerbs = []Verb{
	VerbCreate, VerbGet, VerbList, VerbWatch, VerbUpdate, VerbPatch, VerbDelete, VerbDeleteCollection,
}

// ParseVerb looks a verb up case-insensitively.
func ParseVerb(s string) (Verb, bool) {
	for _, v := range allVerbs {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	return "", false
}

func verbOrder(v Verb) int {
	return slices.Index(allVerbs, v)
}

// Kinds that drive type-specific behavior.
const (
	KindPod                   = "Pod"
	KindNode                  = "Node"
	KindPersistentVolumeClaim = "PersistentVolumeClaim"
	KindDeployment            = "Deployment"
	KindStatefulSet           = "StatefulSet"
	KindDaemonSet             = "DaemonSet"
	KindReplicaSet            = "ReplicaSet"
	KindJob                   = "Job"
)

// Key identifies a resource type independent of its version.
type Key struct {
	Group string
	Name  string
}

// ResourceType describes one resource kind served by a cluster.
type ResourceType struct {
	// Group is empty for the core API group.
	Group          string   `json:"group"`
	StorageVersion string   `json:"storageVersion"`
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Namespaced     bool     `json:"isNamespaced"`
	CustomResource bool     `json:"isCustomResource"`
	SingularName   string   `json:"singularName,omitempty"`
	ShortNames     []string `json:"shortNames,omitempty"`
	ServedVersions []string `json:"servedVersions,omitempty"`
	Verbs          []Verb   `json:"verbs"`
}

// Key returns the version independent identity of the type.
func (r ResourceType) Key() Key {
	return Key{Group: r.Group, Name: r.Name}
}

// Equal reports whether both types have the same group and plural name.
func (r ResourceType) Equal(other ResourceType) bool {
	return r.Key() == other.Key()
}

// Identifier renders the type as "name" or "name.group".
func (r ResourceType) Identifier() string {
	if r.Group == "" {
		return r.Name
	}
	return r.Name + "." + r.Group
}

// GroupVersionResource uses the storage version.
func (r ResourceType) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: r.Group, Version: r.StorageVersion, Resource: r.Name}
}

// GroupVersionKind uses the storage version.
func (r ResourceType) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: r.Group, Version: r.StorageVersion, Kind: r.Kind}
}

// HasVerb reports whether the type supports v.
func (r ResourceType) HasVerb(v Verb) bool {
	return slices.Contains(r.Verbs, v)
}

func (r ResourceType) isCore() bool {
	return r.Group == ""
}

func (r ResourceType) isApps() bool {
	return r.Group == "apps"
}

func (r ResourceType) IsPod() bool {
	return r.isCore() && r.Kind == KindPod
}

func (r ResourceType) IsNode() bool {
	return r.isCore() && r.Kind == KindNode
}

func (r ResourceType) IsPersistentVolumeClaim() bool {
	return r.isCore() && r.Kind == KindPersistentVolumeClaim
}

func (r ResourceType) IsDeployment() bool {
	return r.isApps() && r.Kind == KindDeployment
}

func (r ResourceType) IsStatefulSet() bool {
	return r.isApps() && r.Kind == KindStatefulSet
}

// IsScalable reports whether items of this type can be scaled.
func (r ResourceType) IsScalable() bool {
	return r.IsDeployment() || r.IsStatefulSet()
}

// IsLoggable reports whether logs can be fetched for items of this type.
func (r ResourceType) IsLoggable() bool {
	if r.IsPod() {
		return true
	}
	switch r.Kind {
	case KindDeployment, KindStatefulSet, KindDaemonSet, KindReplicaSet:
		return r.isApps()
	case KindJob:
		return r.Group == "batch"
	}
	return false
}

func (r ResourceType) IsDeletable() bool {
	return r.HasVerb(VerbDelete)
}

func (r ResourceType) IsWatchable() bool {
	return r.HasVerb(VerbWatch)
}

func (r ResourceType) IsListable() bool {
	return r.HasVerb(VerbList)
}

// HasStats reports whether listing this type needs kubelet statistics.
func (r ResourceType) HasStats() bool {
	return r.IsPod() || r.IsNode() || r.IsPersistentVolumeClaim()
}
