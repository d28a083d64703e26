package excel_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/graphbridge/graphbridge/internal/server"
)

func handleListWorksheets(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wb, errResult := parseWorkbookArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.GraphClientForAccount(wb.account)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sheets, err := client.ListWorksheets(ctx, wb.driveID, wb.fileID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list worksheets: %v", err)), nil
	}

	if len(sheets) == 0 {
		return mcp.NewToolResultText("The workbook has no worksheets."), nil
	}

	result := fmt.Sprintf("Found %d worksheet(s):\n\n", len(sheets))
	for i, sheet := range sheets {
		result += fmt.Sprintf("%d. %s\n", i+1, sheet.Name)
		if sheet.Visibility != "" && sheet.Visibility != "Visible" {
			result += fmt.Sprintf("   Visibility: %s\n", sheet.Visibility)
		}
	}

	return mcp.NewToolResultText(result), nil
}

func handleReadRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wb, errResult := parseWorkbookArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	worksheet, ok := args["worksheet"].(string)
	if !ok || worksheet == "" {
		return mcp.NewToolResultError("worksheet is required"), nil
	}
	address, ok := args["range"].(string)
	if !ok || address == "" {
		return mcp.NewToolResultError("range is required"), nil
	}

	client, err := sc.GraphClientForAccount(wb.account)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rng, err := client.GetRange(ctx, wb.driveID, wb.fileID, worksheet, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read range: %v", err)), nil
	}

	result := fmt.Sprintf("Range %s (%d row(s) x %d column(s)):\n\n", rng.Address, rng.RowCount, rng.ColCount)
	result += formatValues(rng.Values)

	return mcp.NewToolResultText(result), nil
}

func handleUpdateRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wb, errResult := parseWorkbookArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	worksheet, ok := args["worksheet"].(string)
	if !ok || worksheet == "" {
		return mcp.NewToolResultError("worksheet is required"), nil
	}
	address, ok := args["range"].(string)
	if !ok || address == "" {
		return mcp.NewToolResultError("range is required"), nil
	}
	values, errResult := parseValues(args)
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.GraphClientForAccount(wb.account)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rng, err := client.UpdateRange(ctx, wb.driveID, wb.fileID, worksheet, address, values)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update range: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Range %s updated (%d row(s) x %d column(s)).",
		rng.Address, rng.RowCount, rng.ColCount)), nil
}

func handleListTables(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wb, errResult := parseWorkbookArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	worksheet, ok := args["worksheet"].(string)
	if !ok || worksheet == "" {
		return mcp.NewToolResultError("worksheet is required"), nil
	}

	client, err := sc.GraphClientForAccount(wb.account)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tables, err := client.ListTables(ctx, wb.driveID, wb.fileID, worksheet)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tables: %v", err)), nil
	}

	if len(tables) == 0 {
		return mcp.NewToolResultText("The worksheet has no tables."), nil
	}

	result := fmt.Sprintf("Found %d table(s):\n\n", len(tables))
	for i, table := range tables {
		result += fmt.Sprintf("%d. %s\n", i+1, table.Name)
		result += fmt.Sprintf("   ID: %s\n", table.ID)
		if table.ShowHeaders {
			result += "   Has header row\n"
		}
	}

	return mcp.NewToolResultText(result), nil
}

func handleAddTableRow(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wb, errResult := parseWorkbookArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	worksheet, ok := args["worksheet"].(string)
	if !ok || worksheet == "" {
		return mcp.NewToolResultError("worksheet is required"), nil
	}
	table, ok := args["table"].(string)
	if !ok || table == "" {
		return mcp.NewToolResultError("table is required"), nil
	}
	values, errResult := parseValues(args)
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.GraphClientForAccount(wb.account)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	row, err := client.AddTableRow(ctx, wb.driveID, wb.fileID, worksheet, table, values)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add table row: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Added %d row(s) to table %s starting at index %d.",
		len(values), table, row.Index)), nil
}

// formatValues renders a cell matrix as tab-separated rows.
func formatValues(values [][]any) string {
	var b strings.Builder
	for _, row := range values {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%v", cell)
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}
	return b.String()
}
