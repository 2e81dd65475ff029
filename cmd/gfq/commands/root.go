package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gfq",
	Short: "go-flow-query - C/C++ call resolution and points-to analysis",
	Long: `go-flow-query resolves calls and computes points-to and value sets for
C and C++ translation units.

Commands:
  analyze     Analyze a file or project and summarize the results
  calls       Show the resolved call graph
  pointsto    Show alias and value sets inside one function
  dfg         Show the def-use chains of a function's locals
  init        Create a configuration file interactively
  doctor      Check grammars, library summaries and the summary cache

Use "gfq [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	RootCmd.PersistentFlags().IntP("workers", "w", 0, "Units analyzed concurrently (0 uses the config)")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(callsCmd)
	RootCmd.AddCommand(pointsToCmd)
	RootCmd.AddCommand(dfgCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(doctorCmd)
}
