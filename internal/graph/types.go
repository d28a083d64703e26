package graph

import (
	"encoding/json"
	"time"
)

// Site is a SharePoint site.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// Drive is a document library within a site.
type Drive struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	WebURL    string `json:"webUrl"`
}

// DriveItem is a file or folder in a drive.
type DriveItem struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	WebURL               string       `json:"webUrl"`
	LastModifiedDateTime time.Time    `json:"lastModifiedDateTime"`
	Folder               *FolderFacet `json:"folder,omitempty"`
	File                 *FileFacet   `json:"file,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i DriveItem) IsFolder() bool {
	return i.Folder != nil
}

// FolderFacet marks a drive item as a folder.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// FileFacet marks a drive item as a file.
type FileFacet struct {
	MimeType string `json:"mimeType"`
}

// Worksheet is a single sheet in an Excel workbook.
type Worksheet struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Visibility string `json:"visibility"`
}

// Range is a rectangular cell range of a worksheet.
type Range struct {
	Address  string  `json:"address"`
	RowCount int     `json:"rowCount"`
	ColCount int     `json:"columnCount"`
	Values   [][]any `json:"values"`
	Text     [][]any `json:"text,omitempty"`
}

// Table is a named Excel table.
type Table struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ShowHeaders    bool   `json:"showHeaders"`
	ShowTotals     bool   `json:"showTotals"`
	HighlightFirst bool   `json:"highlightFirstColumn"`
}

// TableRow is a row appended to a table.
type TableRow struct {
	Index  int     `json:"index"`
	Values [][]any `json:"values"`
}

// listPage is one page of a collection response.
type listPage struct {
	Value    json.RawMessage `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}
