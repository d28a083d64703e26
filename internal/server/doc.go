// Package server provides the MCP server context and supporting HTTP
// endpoints for graphbridge.
//
// ServerContext holds the account manager and a lazily populated cache of
// Microsoft Graph clients, one per signed-in account. Tools ask the context
// for a client by account selector; an empty selector resolves to the
// default account.
//
// MetricsServer exposes Prometheus metrics on a dedicated port, and
// HealthChecker provides liveness and readiness handlers for Kubernetes
// probes.
package server
