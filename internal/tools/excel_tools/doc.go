// Package excel_tools provides MCP tools for Excel workbooks stored in
// drives: listing worksheets and tables, reading and writing cell ranges,
// and appending table rows through the Microsoft Graph workbook API.
//
// Range and row values travel as JSON 2-D arrays in the tool arguments.
// The write tools are disabled in read-only mode.
package excel_tools
