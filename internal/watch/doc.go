// Package watch tracks the live watch sessions of the server.
//
// Every SSE client that watches a resource type gets a Session pairing its
// connection (the Sink) with the API server watch feeding it (the Handle).
// Clients that vanish without a clean shutdown are found by Sweep, which Run
// calls on a ticker, and their watches are stopped.
package watch
