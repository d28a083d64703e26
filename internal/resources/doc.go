// Package resources provides MCP resources for exposing server data.
// Resources are read-only data sources that MCP clients can fetch; the
// graphbridge://accounts resource lists the signed-in Microsoft accounts
// and which one is the default.
package resources
