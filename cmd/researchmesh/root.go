package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "researchmesh",
	Short: "Multi-agent web research coordinator",
	Long: `Researchmesh runs iterative multi-agent research sessions: an
orchestrator plans a topic into subtopics, researcher agents search the web
and analyze sources in parallel, and a synthesizer folds the findings into a
structured report.

Core capabilities:
- Decomposes a topic into parallelizable subtopics
- Searches via SearxNG and reads the top sources per query
- Merges findings into themes, contradictions and knowledge gaps
- Evaluates progress each iteration and decides to continue, expand or stop
- Produces incremental syntheses and a final report`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a researchmesh.yaml config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
}
