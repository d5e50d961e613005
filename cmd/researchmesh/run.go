package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/session"
)

var (
	runDepth       string
	runMaxAgents   int
	runMaxIter     int
	runMaxDuration int
	runFocus       []string
	runExclude     []string
	runOutput      string
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Run a research session to completion",
	Long: `Run starts a research session on the given topic, streams lifecycle
events while the agents work, and prints the final report when the session
completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	runCmd.Flags().StringVar(&runDepth, "depth", "", "Research depth: shallow, medium or deep")
	runCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Maximum concurrent researcher agents")
	runCmd.Flags().IntVar(&runMaxIter, "max-iterations", 0, "Maximum research iterations")
	runCmd.Flags().IntVar(&runMaxDuration, "max-duration", 0, "Maximum session duration in minutes")
	runCmd.Flags().StringSliceVar(&runFocus, "focus", nil, "Areas to focus the research on")
	runCmd.Flags().StringSliceVar(&runExclude, "exclude", nil, "Topics to exclude from the research")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the final report to a file instead of stdout")
}

func runResearch(cmd *cobra.Command, args []string) error {
	topic := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mesh, err := newMesh(cfg)
	if err != nil {
		return err
	}
	defer mesh.Shutdown()

	researchCfg := cfg.ResearchConfig()
	if runDepth != "" {
		researchCfg.DepthLevel = core.DepthLevel(runDepth)
	}
	if runMaxAgents > 0 {
		researchCfg.MaxAgents = runMaxAgents
	}
	researchCfg.FocusAreas = runFocus
	researchCfg.ExcludeTopics = runExclude

	exit := cfg.ExitCriteria()
	if runMaxIter > 0 {
		exit.MaxIterations = runMaxIter
	}
	if runMaxDuration > 0 {
		exit.MaxDurationMinutes = runMaxDuration
	}

	ctx := cmd.Context()
	sess, err := mesh.Sessions().CreateSession(ctx, topic, func(o *session.SessionOptions) {
		o.Config = researchCfg
		o.ExitCriteria = exit
	})
	if err != nil {
		return err
	}

	color.New(color.Bold).Printf("Researching: %s\n", topic)
	fmt.Printf("Session %s (depth %s, max %d agents, max %d iterations)\n\n",
		sess.ID, researchCfg.DepthLevel, researchCfg.MaxAgents, exit.MaxIterations)

	done := make(chan error, 1)
	unsub := mesh.Sessions().Subscribe(func(event core.Event) {
		printEvent(event)
		switch ev := event.(type) {
		case core.SessionCompleted:
			done <- nil
		case core.SessionFailed:
			done <- ev.Err
		}
	})
	defer unsub()

	if err := mesh.Sessions().StartSession(ctx, sess.ID); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			color.Red("Research failed: %v", err)
			return err
		}
	case <-ctx.Done():
		mesh.Sessions().StopSession(context.Background(), sess.ID)
		return ctx.Err()
	}

	synthesis, err := mesh.Sessions().LatestSynthesis(ctx, sess.ID)
	if err != nil {
		return err
	}
	if synthesis == nil {
		color.Yellow("Session completed without a synthesis")
		return nil
	}

	report := renderSynthesis(topic, synthesis)
	if runOutput != "" {
		if err := writeReport(runOutput, report); err != nil {
			return err
		}
		color.Green("\nReport written to %s", runOutput)
		return nil
	}

	fmt.Println()
	fmt.Println(report)
	return nil
}

func printEvent(event core.Event) {
	switch ev := event.(type) {
	case core.PlanCreated:
		color.Green("✓ Plan created: %d subtopics", len(ev.Plan.Subtopics))
		for _, st := range ev.Plan.Subtopics {
			fmt.Printf("  - %s\n", st.Title)
		}
	case core.IterationStarted:
		color.New(color.Bold).Printf("\nIteration %d\n", ev.Iteration)
	case core.AgentProgressed:
		if ev.Task != "" {
			fmt.Printf("  [%3.0f%%] %s\n", ev.Progress, ev.Task)
		}
	case core.AgentFailed:
		color.Yellow("  agent %s: %v", ev.AgentID, ev.Err)
	case core.IterationCompleted:
		fmt.Printf("  %d findings so far\n", ev.FindingCount)
	case core.SynthesisStarted:
		if ev.IsFinal {
			color.New(color.Bold).Println("\nWriting final report...")
		}
	case core.SessionCompleted:
		color.Green("\n✓ Research complete")
	case core.SessionFailed:
		color.Red("\n✗ Research failed: %v", ev.Err)
	}
}

func renderSynthesis(topic string, s *core.Synthesis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", topic)
	fmt.Fprintf(&b, "%s\n", s.Summary)

	if len(s.KeyFindings) > 0 {
		b.WriteString("\n## Key Findings\n\n")
		for _, kf := range s.KeyFindings {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", kf.Title, kf.Importance, kf.Description)
		}
	}

	for _, sec := range s.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Title, sec.Content)
		if len(sec.Sources) > 0 {
			b.WriteString("\nSources:\n")
			for _, src := range sec.Sources {
				fmt.Fprintf(&b, "- %s\n", src)
			}
		}
	}

	fmt.Fprintf(&b, "\n---\nConfidence: %.0f%%, iteration %d\n", s.Confidence*100, s.Iteration)
	return b.String()
}
