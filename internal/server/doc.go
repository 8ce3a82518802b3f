// Package server hosts the Slidecast REST API behind a single HTTP server.
//
// The server builds a consistent middleware chain of auth, rate limiting,
// metrics, audit, and logging so handlers all share common protections and
// instrumentation. Request IDs, CORS policy, and security headers are applied
// to every response from the same chain.
package server
