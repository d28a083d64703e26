// Package sharepoint_tools provides MCP tools for SharePoint sites and
// document libraries: site lookup by ID or URL, drive and file listing, and
// file download/upload through the Microsoft Graph client.
//
// The upload tool is a write operation and is disabled in read-only mode.
package sharepoint_tools
