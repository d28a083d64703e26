// Package account_tools provides MCP tools for Microsoft account management:
// listing signed-in accounts, running the device-code sign-in flow, and
// removing accounts.
//
// Sign-in is a two-step conversation: accounts_authenticate returns a user
// code and verification URL for the agent to relay to the user, and
// accounts_complete_authentication blocks until the user finishes in the
// browser. The flow handle returned by the first step is the only state
// carried between the two calls.
package account_tools
