package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the k7s application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "k7s",
	Short: "Web dashboard for Kubernetes clusters",
	Long: `k7s serves a web dashboard for the clusters of your kubeconfig. It lists
resource types and items, streams watch events and logs over server-sent
events, and can scale or delete workloads.

When run without subcommands, it starts the dashboard server (equivalent to 'k7s serve').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles subcommands and flags.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "k7s version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newResourcesCmd())
	rootCmd.AddCommand(newItemsCmd())
}
