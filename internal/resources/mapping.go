package resources

import (
	"cmp"
	"slices"
	"strings"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/version"
)

// DiscoveredResource is one (group, version, resource) triple reported by
// API discovery.
type DiscoveredResource struct {
	Group    string
	Version  string
	Resource metav1.APIResource
}

// CustomResource summarises a CustomResourceDefinition.
type CustomResource struct {
	Group          string
	Plural         string
	Kind           string
	Namespaced     bool
	StorageVersion string
	ServedVersions []string
}

// CustomResourceFromCRD extracts the fields the catalog needs from a CRD.
// The storage version is the first version flagged as storage.
func CustomResourceFromCRD(crd apiextensionsv1.CustomResourceDefinition) CustomResource {
	cr := CustomResource{
		Group:      crd.Spec.Group,
		Plural:     crd.Spec.Names.Plural,
		Kind:       crd.Spec.Names.Kind,
		Namespaced: crd.Spec.Scope == apiextensionsv1.NamespaceScoped,
	}
	for _, v := range crd.Spec.Versions {
		if v.Served {
			cr.ServedVersions = append(cr.ServedVersions, v.Name)
		}
		if v.Storage && cr.StorageVersion == "" {
			cr.StorageVersion = v.Name
		}
	}
	return cr
}

// MapResourceTypes folds discovered triples into one ResourceType per
// (group, plural). The result is sorted by kind, then group.
func MapResourceTypes(discovered []DiscoveredResource, crds []CustomResource) []ResourceType {
	crdByKey := make(map[Key]CustomResource, len(crds))
	for _, cr := range crds {
		crdByKey[Key{Group: cr.Group, Name: cr.Plural}] = cr
	}

	var order []Key
	grouped := make(map[Key][]DiscoveredResource)
	for _, d := range discovered {
		if strings.Contains(d.Resource.Name, "/") {
			continue
		}
		key := Key{Group: strings.TrimSpace(d.Group), Name: d.Resource.Name}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], d)
	}

	types := make([]ResourceType, 0, len(order))
	for _, key := range order {
		types = append(types, mapResourceType(key, grouped[key], crdByKey))
	}

	slices.SortStableFunc(types, func(a, b ResourceType) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Group, b.Group))
	})
	return types
}

func mapResourceType(key Key, entries []DiscoveredResource, crds map[Key]CustomResource) ResourceType {
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if !slices.Contains(versions, e.Version) {
			versions = append(versions, e.Version)
		}
	}

	rt := ResourceType{
		Group:          key.Group,
		Name:           key.Name,
		ServedVersions: versions,
	}

	crd, isCRD := crds[key]
	if isCRD && crd.StorageVersion != "" {
		rt.CustomResource = true
		rt.StorageVersion = crd.StorageVersion
	} else {
		rt.CustomResource = isCRD
		rt.StorageVersion = LatestVersion(versions)
	}

	primary := entries[0]
	for _, e := range entries {
		if e.Version == rt.StorageVersion {
			primary = e
			break
		}
	}

	rt.Kind = primary.Resource.Kind
	rt.Namespaced = primary.Resource.Namespaced
	if singular := strings.TrimSpace(primary.Resource.SingularName); singular != "" {
		rt.SingularName = singular
	}
	if len(primary.Resource.ShortNames) > 0 {
		rt.ShortNames = slices.Clone(primary.Resource.ShortNames)
	}
	rt.Verbs = parseVerbs(primary.Resource.Verbs)

	return rt
}

func parseVerbs(raw []string) []Verb {
	var verbs []Verb
	for _, s := range raw {
		v, ok := ParseVerb(s)
		if !ok || slices.Contains(verbs, v) {
			continue
		}
		verbs = append(verbs, v)
	}
	slices.SortFunc(verbs, func(a, b Verb) int {
		return cmp.Compare(verbOrder(a), verbOrder(b))
	})
	return verbs
}

// LatestVersion picks the newest of a set of version strings in the order
// the API server itself uses: GA before beta before alpha, then by major and
// minor number. So "v1" beats "v1beta1" and "v10" beats "v9".
func LatestVersion(versions []string) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || version.CompareKubeAwareVersionStrings(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}
