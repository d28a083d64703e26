// Package graph is a minimal Microsoft Graph REST client covering the
// SharePoint site, drive, and Excel workbook surface the server exposes.
//
// A Client is bound to one signed-in account and obtains bearer tokens from a
// TokenProvider on every request. The request core handles throttling
// (Retry-After), transient server failures (exponential backoff), rejected
// tokens (invalidate and retry once), and @odata.nextLink pagination.
package graph
