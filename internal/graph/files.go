package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SmallUploadLimit is the largest payload the simple upload endpoint accepts.
const SmallUploadLimit = 4 * 1024 * 1024

// ListDriveItems lists the children of a folder. An empty itemID lists the
// drive root.
func (c *Client) ListDriveItems(ctx context.Context, driveID, itemID string) ([]DriveItem, error) {
	path := "/drives/" + url.PathEscape(driveID) + "/root/children"
	if itemID != "" {
		path = "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID) + "/children"
	}

	var items []DriveItem
	err := c.listAll(ctx, path, func(raw json.RawMessage) error {
		var page []DriveItem
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to parse item list: %w", err)
		}
		items = append(items, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetDriveItemByPath resolves an item from its path relative to the drive
// root, e.g. "Reports/2026/summary.xlsx".
func (c *Client) GetDriveItemByPath(ctx context.Context, driveID, itemPath string) (*DriveItem, error) {
	path := fmt.Sprintf("/drives/%s/root:/%s", url.PathEscape(driveID), itemPath)
	var item DriveItem
	if err := c.getJSON(ctx, path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DownloadFile returns the raw content of a file.
func (c *Client) DownloadFile(ctx context.Context, driveID, itemID string) ([]byte, error) {
	path := "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID) + "/content"
	return c.do(ctx, http.MethodGet, path, nil, "", nil)
}

// UploadFile writes data as a file named filename under the given parent
// folder, replacing any existing file of that name. Payloads above
// SmallUploadLimit need an upload session and are rejected here.
func (c *Client) UploadFile(ctx context.Context, driveID, parentID, filename string, data []byte) (*DriveItem, error) {
	if len(data) > SmallUploadLimit {
		return nil, fmt.Errorf("file %q is %d bytes, above the %d byte simple-upload limit", filename, len(data), SmallUploadLimit)
	}
	if filename == "" {
		return nil, fmt.Errorf("filename cannot be empty")
	}

	path := fmt.Sprintf("/drives/%s/items/%s:/%s:/content",
		url.PathEscape(driveID), url.PathEscape(parentID), url.PathEscape(filename))

	body, err := c.do(ctx, http.MethodPut, path, nil, "application/octet-stream", data)
	if err != nil {
		return nil, err
	}

	var item DriveItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	return &item, nil
}

// DeleteDriveItem removes a file or folder.
func (c *Client) DeleteDriveItem(ctx context.Context, driveID, itemID string) error {
	path := "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID)
	_, err := c.do(ctx, http.MethodDelete, path, nil, "", nil)
	return err
}
