package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func workbookPath(driveID, itemID string) string {
	return "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID) + "/workbook"
}

// ListWorksheets returns the sheets of a workbook.
func (c *Client) ListWorksheets(ctx context.Context, driveID, itemID string) ([]Worksheet, error) {
	var sheets []Worksheet
	err := c.listAll(ctx, workbookPath(driveID, itemID)+"/worksheets", func(raw json.RawMessage) error {
		var page []Worksheet
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to parse worksheet list: %w", err)
		}
		sheets = append(sheets, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sheets, nil
}

func rangePath(driveID, itemID, worksheet, address string) string {
	return fmt.Sprintf("%s/worksheets/%s/range(address='%s')",
		workbookPath(driveID, itemID), url.PathEscape(worksheet), address)
}

// GetRange reads a cell range, e.g. ("Sheet1", "A1:C10").
func (c *Client) GetRange(ctx context.Context, driveID, itemID, worksheet, address string) (*Range, error) {
	var rng Range
	if err := c.getJSON(ctx, rangePath(driveID, itemID, worksheet, address), nil, &rng); err != nil {
		return nil, err
	}
	return &rng, nil
}

// UpdateRange writes values into a cell range. The values matrix must match
// the range dimensions; the service rejects mismatches.
func (c *Client) UpdateRange(ctx context.Context, driveID, itemID, worksheet, address string, values [][]any) (*Range, error) {
	payload := map[string]any{"values": values}
	var rng Range
	if err := c.writeJSON(ctx, http.MethodPatch, rangePath(driveID, itemID, worksheet, address), payload, &rng); err != nil {
		return nil, err
	}
	return &rng, nil
}

// ListTables returns the named tables of a worksheet.
func (c *Client) ListTables(ctx context.Context, driveID, itemID, worksheet string) ([]Table, error) {
	path := workbookPath(driveID, itemID) + "/worksheets/" + url.PathEscape(worksheet) + "/tables"

	var tables []Table
	err := c.listAll(ctx, path, func(raw json.RawMessage) error {
		var page []Table
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to parse table list: %w", err)
		}
		tables = append(tables, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// AddTableRow appends rows to a named table.
func (c *Client) AddTableRow(ctx context.Context, driveID, itemID, worksheet, table string, values [][]any) (*TableRow, error) {
	path := fmt.Sprintf("%s/worksheets/%s/tables/%s/rows/add",
		workbookPath(driveID, itemID), url.PathEscape(worksheet), url.PathEscape(table))

	payload := map[string]any{"values": values}
	var row TableRow
	if err := c.writeJSON(ctx, http.MethodPost, path, payload, &row); err != nil {
		return nil, err
	}
	return &row, nil
}
