package common

import (
	"context"
)

// GetAccountFromArgs extracts the account selector from request arguments.
// An empty selector means the default account (the first one that
// authenticated); resolution happens in the account manager.
func GetAccountFromArgs(_ context.Context, args map[string]interface{}) string {
	if accountVal, ok := args["account"].(string); ok {
		return accountVal
	}
	return ""
}
