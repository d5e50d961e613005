package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportAll    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export the report of a session as markdown",
	Long: `Export renders the latest synthesis of a session as a markdown
report. With --all the full synthesis history is exported instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write the report to a file instead of stdout")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every synthesis, not just the latest")
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mesh, err := newMesh(cfg)
	if err != nil {
		return err
	}
	defer mesh.Shutdown()

	ctx := cmd.Context()
	sess, err := mesh.Sessions().GetSession(ctx, id)
	if err != nil {
		return err
	}

	var report string
	if exportAll {
		history, err := mesh.Sessions().SynthesisHistory(ctx, id)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("session %s has no syntheses", id)
		}
		for i, s := range history {
			if i > 0 {
				report += "\n\n"
			}
			report += renderSynthesis(sess.Topic, s)
		}
	} else {
		synthesis, err := mesh.Sessions().LatestSynthesis(ctx, id)
		if err != nil {
			return err
		}
		if synthesis == nil {
			return fmt.Errorf("session %s has no syntheses", id)
		}
		report = renderSynthesis(sess.Topic, synthesis)
	}

	if exportOutput != "" {
		if err := writeReport(exportOutput, report); err != nil {
			return err
		}
		color.Green("Report written to %s", exportOutput)
		return nil
	}

	fmt.Println(report)
	return nil
}

func writeReport(path, report string) error {
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
