package sharepoint_tools

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/graph"
	"github.com/graphbridge/graphbridge/internal/server"
)

// RegisterSharePointTools registers all SharePoint site and file tools with
// the MCP server
func RegisterSharePointTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerSiteTools(s, sc); err != nil {
		return fmt.Errorf("failed to register site tools: %w", err)
	}

	if err := registerFileTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register file tools: %w", err)
	}

	return nil
}

func formatDriveItem(item graph.DriveItem) string {
	kind := "file"
	if item.IsFolder() {
		kind = fmt.Sprintf("folder (%d children)", item.Folder.ChildCount)
	}
	result := fmt.Sprintf("%s [%s]\n", item.Name, kind)
	result += fmt.Sprintf("   ID: %s\n", item.ID)
	if !item.IsFolder() {
		result += fmt.Sprintf("   Size: %d bytes\n", item.Size)
	}
	if !item.LastModifiedDateTime.IsZero() {
		result += fmt.Sprintf("   Modified: %s\n", item.LastModifiedDateTime.Format("2006-01-02 15:04:05"))
	}
	return result
}
