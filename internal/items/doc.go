// Package items maps cluster objects to display items.
//
// A ResourceItem carries the identity of an object plus kind specific
// columns. Highlighted columns are the most important ones; values with a
// mobile text are also shown on narrow screens. Usage columns for pods,
// nodes and claims are computed from kubelet stats summaries.
//
// Objects may be typed API structs or unstructured content. Custom resources
// and kinds without dedicated columns map to an item without columns.
package items
