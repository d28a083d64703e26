package sharepoint_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/tools/common"
)

// registerSiteTools registers site lookup and drive listing tools
func registerSiteTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Get site by ID tool
	getSiteTool := mcp.NewTool("sharepoint_get_site",
		mcp.WithDescription("Get a SharePoint site by its site ID"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("siteId",
			mcp.Required(),
			mcp.Description("The composite site ID, e.g. 'contoso.sharepoint.com,guid,guid'"),
		),
	)

	s.AddTool(getSiteTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_get_site", "sharepoint", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetSite(ctx, request, sc)
		}))

	// Get site by URL tool
	getSiteByURLTool := mcp.NewTool("sharepoint_get_site_by_url",
		mcp.WithDescription("Resolve a SharePoint site from its browser URL, e.g. https://contoso.sharepoint.com/sites/engineering"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The full site URL"),
		),
	)

	s.AddTool(getSiteByURLTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_get_site_by_url", "sharepoint", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetSiteByURL(ctx, request, sc)
		}))

	// Search sites tool
	searchSitesTool := mcp.NewTool("sharepoint_search_sites",
		mcp.WithDescription("Search SharePoint sites across the tenant by keyword"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search keywords matched against site names"),
		),
	)

	s.AddTool(searchSitesTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_search_sites", "sharepoint", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchSites(ctx, request, sc)
		}))

	// List drives tool
	listDrivesTool := mcp.NewTool("sharepoint_list_drives",
		mcp.WithDescription("List the document libraries (drives) of a SharePoint site"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("siteId",
			mcp.Required(),
			mcp.Description("The site ID (use sharepoint_get_site_by_url to find it)"),
		),
	)

	s.AddTool(listDrivesTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_list_drives", "sharepoint", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListDrives(ctx, request, sc)
		}))

	return nil
}

func handleGetSite(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	siteID, ok := args["siteId"].(string)
	if !ok || siteID == "" {
		return mcp.NewToolResultError("siteId is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	site, err := client.GetSite(ctx, siteID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get site: %v", err)), nil
	}

	result := fmt.Sprintf("Site: %s\n", site.DisplayName)
	result += fmt.Sprintf("ID: %s\n", site.ID)
	result += fmt.Sprintf("Name: %s\n", site.Name)
	result += fmt.Sprintf("URL: %s\n", site.WebURL)

	return mcp.NewToolResultText(result), nil
}

func handleGetSiteByURL(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	siteURL, ok := args["url"].(string)
	if !ok || siteURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	site, err := client.GetSiteByURL(ctx, siteURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve site: %v", err)), nil
	}

	result := fmt.Sprintf("Site: %s\n", site.DisplayName)
	result += fmt.Sprintf("ID: %s\n", site.ID)
	result += fmt.Sprintf("URL: %s\n", site.WebURL)
	result += "\nUse this ID with sharepoint_list_drives to browse its document libraries.\n"

	return mcp.NewToolResultText(result), nil
}

func handleSearchSites(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sites, err := client.SearchSites(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search sites: %v", err)), nil
	}

	if len(sites) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No sites found matching %q.", query)), nil
	}

	result := fmt.Sprintf("Found %d site(s):\n\n", len(sites))
	for i, site := range sites {
		result += fmt.Sprintf("%d. %s\n", i+1, site.DisplayName)
		result += fmt.Sprintf("   ID: %s\n", site.ID)
		result += fmt.Sprintf("   URL: %s\n", site.WebURL)
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleListDrives(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	siteID, ok := args["siteId"].(string)
	if !ok || siteID == "" {
		return mcp.NewToolResultError("siteId is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	drives, err := client.ListDrives(ctx, siteID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list drives: %v", err)), nil
	}

	if len(drives) == 0 {
		return mcp.NewToolResultText("The site has no document libraries."), nil
	}

	result := fmt.Sprintf("Found %d document library(ies):\n\n", len(drives))
	for i, drive := range drives {
		result += fmt.Sprintf("%d. %s\n", i+1, drive.Name)
		result += fmt.Sprintf("   ID: %s\n", drive.ID)
		result += fmt.Sprintf("   Type: %s\n", drive.DriveType)
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}
