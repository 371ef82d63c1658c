// Package stats fetches and caches kubelet stats summaries.
//
// Summaries are read per node from /api/v1/nodes/{node}/proxy/stats/summary
// and kept per kubeconfig context for a short TTL (one minute by default).
// Nodes are fetched concurrently and a failing node only loses its own entry.
package stats
