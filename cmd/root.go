package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the graphbridge application
var rootCmd = &cobra.Command{
	Use:   "graphbridge",
	Short: "MCP server for Microsoft 365 SharePoint, files, and Excel",
	Long: `graphbridge bridges AI assistants to Microsoft 365 through the
Model Context Protocol: SharePoint sites, drive files, and Excel
workbooks, across any number of signed-in Microsoft accounts.

It can run as:
  - An MCP server over stdio (default)
  - A CLI for managing signed-in accounts (graphbridge accounts ...)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "graphbridge version %s\n" .Version}}`)

	// If no subcommand is provided, run the MCP server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
