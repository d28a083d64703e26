package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/server"
)

// AccountsResourceURI identifies the signed-in accounts resource.
const AccountsResourceURI = "graphbridge://accounts"

// RegisterAccountResources registers account resources with the MCP server.
// The accounts resource lets agents inspect which identities are available
// without spending a tool call.
func RegisterAccountResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	accountsResource := mcp.NewResource(
		AccountsResourceURI,
		"Signed-in Microsoft Accounts",
		mcp.WithResourceDescription("The Microsoft accounts this server can act for, in sign-in order. The first entry is the default account."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(accountsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccountsResource(ctx, request, sc)
	})

	return nil
}

// handleAccountsResource returns the signed-in account list
func handleAccountsResource(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	identities := sc.Accounts().Accounts()

	accounts := make([]map[string]interface{}, 0, len(identities))
	for i, identity := range identities {
		accounts = append(accounts, map[string]interface{}{
			"id":      identity.ID,
			"label":   identity.Label,
			"default": i == 0,
		})
	}

	payload := map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	}

	jsonData, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
