package admin

import "github.com/spf13/cobra"

// RootCmd assembles the stromd command tree.
func RootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "stromd",
		Short:   "Strom project Q&A service",
		Long:    "Strom ingests project documents into a vector store and answers questions about them",
		Version: version,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(IngestCmd())
	rootCmd.AddCommand(AskCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(JobsCmd())
	rootCmd.AddCommand(UserCmd())

	return rootCmd
}
