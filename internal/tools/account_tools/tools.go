package account_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/msauth"
	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/tools/common"
)

// RegisterAccountTools registers account management tools with the MCP server
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// List accounts tool
	listAccountsTool := mcp.NewTool("accounts_list",
		mcp.WithDescription("List all signed-in Microsoft accounts. The first account is the default used when a tool is called without an explicit account."),
	)

	s.AddTool(listAccountsTool, common.InstrumentedToolHandlerWithService(
		"accounts_list", "accounts", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAccounts(ctx, request, sc)
		}))

	// Start device-code authentication tool
	authenticateTool := mcp.NewTool("accounts_authenticate",
		mcp.WithDescription("Start signing in a Microsoft account via the device-code flow. Returns a user code and verification URL to show the user, plus a flow handle for accounts_complete_authentication."),
	)

	s.AddTool(authenticateTool, common.InstrumentedToolHandlerWithService(
		"accounts_authenticate", "accounts", "authenticate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthenticate(ctx, request, sc)
		}))

	// Complete device-code authentication tool
	completeTool := mcp.NewTool("accounts_complete_authentication",
		mcp.WithDescription("Complete a sign-in started with accounts_authenticate. Blocks until the user finishes entering the code in their browser, then registers the account."),
		mcp.WithString("flowHandle",
			mcp.Required(),
			mcp.Description("The flow handle returned by accounts_authenticate"),
		),
	)

	s.AddTool(completeTool, common.InstrumentedToolHandlerWithService(
		"accounts_complete_authentication", "accounts", "complete", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCompleteAuthentication(ctx, request, sc)
		}))

	// Remove account tool
	removeAccountTool := mcp.NewTool("accounts_remove",
		mcp.WithDescription("Sign out a Microsoft account and delete its stored tokens"),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account ID to remove (see accounts_list)"),
		),
	)

	s.AddTool(removeAccountTool, common.InstrumentedToolHandlerWithService(
		"accounts_remove", "accounts", "remove", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRemoveAccount(ctx, request, sc)
		}))

	return nil
}

func handleListAccounts(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts := sc.Accounts().Accounts()
	if len(accounts) == 0 {
		return mcp.NewToolResultText("No accounts are signed in. Use accounts_authenticate to sign in."), nil
	}

	result := fmt.Sprintf("Found %d signed-in account(s):\n\n", len(accounts))
	for i, identity := range accounts {
		result += fmt.Sprintf("%d. %s\n", i+1, identity.ID)
		if identity.Label != "" && identity.Label != identity.ID {
			result += fmt.Sprintf("   Label: %s\n", identity.Label)
		}
		if i == 0 {
			result += "   [DEFAULT]\n"
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleAuthenticate(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	flow, err := sc.Accounts().StartLogin(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start authentication: %v", err)), nil
	}

	expiresIn := time.Until(flow.ExpiresAt).Round(time.Second)
	result := fmt.Sprintf(`To sign in a Microsoft account:

1. Visit this URL in your browser:
   %s

2. Enter the code: %s

3. Sign in and grant access

The code expires in %s. Once the user confirms they have entered the code, call accounts_complete_authentication with this flow handle:

%s`, flow.VerificationURI, flow.UserCode, expiresIn, flow.Handle)

	return mcp.NewToolResultText(result), nil
}

func handleCompleteAuthentication(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	handle, ok := args["flowHandle"].(string)
	if !ok || handle == "" {
		return mcp.NewToolResultError("flowHandle is required"), nil
	}

	identity, err := sc.Accounts().CompleteLogin(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, msauth.ErrFlowExpired):
			recordDeviceFlow(ctx, sc, "expired")
			return mcp.NewToolResultError("The sign-in code expired before the user entered it. Call accounts_authenticate to start over."), nil
		case errors.Is(err, msauth.ErrFlowDenied):
			recordDeviceFlow(ctx, sc, "denied")
			return mcp.NewToolResultError("The user declined the sign-in request."), nil
		case errors.Is(err, msauth.ErrInvalidFlowHandle):
			return mcp.NewToolResultError("The flow handle is not valid. Use the handle returned by accounts_authenticate."), nil
		default:
			recordDeviceFlow(ctx, sc, "failure")
			return mcp.NewToolResultError(fmt.Sprintf("Authentication failed: %v", err)), nil
		}
	}

	recordDeviceFlow(ctx, sc, "success")
	return mcp.NewToolResultText(fmt.Sprintf("Signed in as %s. All tools can now use this account.", identity.ID)), nil
}

func recordDeviceFlow(ctx context.Context, sc *server.ServerContext, result string) {
	if metrics := sc.Metrics(); metrics != nil {
		metrics.RecordDeviceFlow(ctx, result)
	}
}

func handleRemoveAccount(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, ok := args["account"].(string)
	if !ok || account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}

	accountID, err := sc.Accounts().Resolve(account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown account: %v", err)), nil
	}

	if err := sc.Accounts().Remove(accountID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to remove account %s: %v", accountID, err)), nil
	}
	sc.DropGraphClient(accountID)

	return mcp.NewToolResultText(fmt.Sprintf("Account %s removed.", accountID)), nil
}
