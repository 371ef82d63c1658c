// Package middleware provides HTTP middleware for the k7s server.
// These middleware functions handle request metrics, security headers and CORS.
package middleware
