package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sessionsLimit  int
	sessionsOffset int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List research sessions",
	Long:  `Sessions lists persisted research sessions, newest first.`,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
	sessionsCmd.Flags().IntVar(&sessionsOffset, "offset", 0, "Number of sessions to skip")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mesh, err := newMesh(cfg)
	if err != nil {
		return err
	}
	defer mesh.Shutdown()

	sessions, err := mesh.Sessions().ListSessions(cmd.Context(), sessionsLimit, sessionsOffset)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found. Run 'researchmesh run <topic>' to start one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tITER\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Topic, coloredStatus(string(s.Status)), s.CurrentIteration,
			s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func coloredStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "error":
		return color.RedString(status)
	case "paused":
		return color.YellowString(status)
	default:
		return status
	}
}
