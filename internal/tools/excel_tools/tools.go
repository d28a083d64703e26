package excel_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/tools/common"
)

// RegisterExcelTools registers Excel workbook tools with the MCP server
func RegisterExcelTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List worksheets tool
	listWorksheetsTool := mcp.NewTool("excel_list_worksheets",
		mcp.WithDescription("List the worksheets of an Excel workbook stored in a drive"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID containing the workbook"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The workbook file item ID"),
		),
	)

	s.AddTool(listWorksheetsTool, common.InstrumentedToolHandlerWithService(
		"excel_list_worksheets", "excel", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListWorksheets(ctx, request, sc)
		}))

	// Read range tool
	readRangeTool := mcp.NewTool("excel_read_range",
		mcp.WithDescription("Read a cell range from a worksheet, e.g. A1:C10"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID containing the workbook"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The workbook file item ID"),
		),
		mcp.WithString("worksheet",
			mcp.Required(),
			mcp.Description("The worksheet name, e.g. 'Sheet1'"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The range address in A1 notation, e.g. 'A1:C10'"),
		),
	)

	s.AddTool(readRangeTool, common.InstrumentedToolHandlerWithService(
		"excel_read_range", "excel", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadRange(ctx, request, sc)
		}))

	// List tables tool
	listTablesTool := mcp.NewTool("excel_list_tables",
		mcp.WithDescription("List the named tables of a worksheet"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID containing the workbook"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The workbook file item ID"),
		),
		mcp.WithString("worksheet",
			mcp.Required(),
			mcp.Description("The worksheet name"),
		),
	)

	s.AddTool(listTablesTool, common.InstrumentedToolHandlerWithService(
		"excel_list_tables", "excel", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTables(ctx, request, sc)
		}))

	// Update range tool (write operation)
	updateRangeTool := mcp.NewTool("excel_update_range",
		mcp.WithDescription("Write values into a cell range. The values matrix must match the range dimensions."),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID containing the workbook"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The workbook file item ID"),
		),
		mcp.WithString("worksheet",
			mcp.Required(),
			mcp.Description("The worksheet name"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("The range address in A1 notation"),
		),
		mcp.WithString("values",
			mcp.Required(),
			mcp.Description(`The cell values as a JSON 2-D array, rows outermost, e.g. [["Q3",1200],["Q4",1500]]`),
		),
	)

	// Add table row tool (write operation)
	addTableRowTool := mcp.NewTool("excel_add_table_row",
		mcp.WithDescription("Append rows to a named table"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID containing the workbook"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The workbook file item ID"),
		),
		mcp.WithString("worksheet",
			mcp.Required(),
			mcp.Description("The worksheet name"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
		mcp.WithString("values",
			mcp.Required(),
			mcp.Description(`The row values as a JSON 2-D array, one inner array per row`),
		),
	)

	if readOnly {
		readOnlyHandler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("Cannot modify workbooks in read-only mode. Use --yolo flag to enable write operations."), nil
		}
		s.AddTool(updateRangeTool, readOnlyHandler)
		s.AddTool(addTableRowTool, readOnlyHandler)
		return nil
	}

	s.AddTool(updateRangeTool, common.InstrumentedToolHandlerWithService(
		"excel_update_range", "excel", "update", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateRange(ctx, request, sc)
		}))

	s.AddTool(addTableRowTool, common.InstrumentedToolHandlerWithService(
		"excel_add_table_row", "excel", "update", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAddTableRow(ctx, request, sc)
		}))

	return nil
}

// workbookArgs are the arguments every workbook tool shares.
type workbookArgs struct {
	account string
	driveID string
	fileID  string
}

func parseWorkbookArgs(ctx context.Context, args map[string]interface{}) (workbookArgs, *mcp.CallToolResult) {
	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return workbookArgs{}, mcp.NewToolResultError("driveId is required")
	}
	fileID, ok := args["fileId"].(string)
	if !ok || fileID == "" {
		return workbookArgs{}, mcp.NewToolResultError("fileId is required")
	}
	return workbookArgs{
		account: common.GetAccountFromArgs(ctx, args),
		driveID: driveID,
		fileID:  fileID,
	}, nil
}

func parseValues(args map[string]interface{}) ([][]any, *mcp.CallToolResult) {
	raw, ok := args["values"].(string)
	if !ok || raw == "" {
		return nil, mcp.NewToolResultError("values is required")
	}
	var values [][]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("values must be a JSON 2-D array: %v", err))
	}
	if len(values) == 0 {
		return nil, mcp.NewToolResultError("values must contain at least one row")
	}
	return values, nil
}
