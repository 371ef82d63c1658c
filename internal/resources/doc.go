// Package resources is the resource-type catalog.
//
// For each kubeconfig context the Catalog merges API discovery with the
// cluster's CustomResourceDefinitions into a list of ResourceType values, one
// per (group, plural name). Versions never take part in identity: a type is
// served in one or more versions and is read and written in its storage
// version. For CRDs that is the version flagged as storage; for built-in types
// it is picked by LatestVersion.
//
// Catalogs are computed once per context and cached until Invalidate is
// called, or until the optional refresh interval passes.
package resources
