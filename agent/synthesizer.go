package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/textparse"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

const (
	synthesisMaxTokens   = 8000
	degradedSummaryRunes = 1000
	degradedSectionTitle = "Research Findings"
	degradedConfidence   = 0.5
)

// SynthesizerOptions configures a Synthesizer.
type SynthesizerOptions struct {
	// ID overrides the generated agent identifier.
	ID string
	// DepthLevel annotates the synthesis prompt. Defaults to medium.
	DepthLevel core.DepthLevel
	// OutputStyle sets the requested tone of the report. Defaults to formal.
	OutputStyle string
	// Instructions are appended custom synthesis instructions.
	Instructions string
	// SystemPrompt replaces the built-in synthesizer system prompt.
	SystemPrompt string
	// CallTimeout bounds each model completion call.
	CallTimeout time.Duration
	// Logger receives diagnostic output.
	Logger logging.Logger
}

// Synthesizer turns an accumulated working set of findings into structured
// reports. It serves direct Synthesize calls from the orchestrator as well as
// SynthesizeRequest messages over the fabric.
type Synthesizer struct {
	BaseAgent

	engine model.Engine

	topic        string
	depthLevel   core.DepthLevel
	outputStyle  string
	instructions string
	systemPrompt string
	callTimeout  time.Duration

	mu        sync.Mutex
	syntheses []*core.Synthesis
}

// NewSynthesizer constructs a synthesizer for the given session and topic.
func NewSynthesizer(fab *fabric.Fabric, engine model.Engine, sessionID, topic string, optFns ...func(o *SynthesizerOptions)) *Synthesizer {
	opts := SynthesizerOptions{
		DepthLevel:  core.DepthMedium,
		OutputStyle: "formal",
		CallTimeout: 2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Synthesizer{
		BaseAgent:    newBase(opts.ID, core.RoleSynthesizer, sessionID, fab, opts.Logger),
		engine:       engine,
		topic:        topic,
		depthLevel:   opts.DepthLevel,
		outputStyle:  opts.OutputStyle,
		instructions: opts.Instructions,
		systemPrompt: orDefault(opts.SystemPrompt, synthesizerSystemPrompt),
		callTimeout:  opts.CallTimeout,
	}
	s.bind(s.HandleMessage)
	return s
}

// Syntheses returns a copy of all syntheses produced so far, oldest first.
func (s *Synthesizer) Syntheses() []*core.Synthesis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Synthesis, len(s.syntheses))
	copy(out, s.syntheses)
	return out
}

// LatestSynthesis returns the most recent synthesis or nil.
func (s *Synthesizer) LatestSynthesis() *core.Synthesis {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.syntheses) == 0 {
		return nil
	}
	return s.syntheses[len(s.syntheses)-1]
}

// HandleMessage dispatches on the payload kind. Unknown payloads are ignored.
func (s *Synthesizer) HandleMessage(msg core.Message) error {
	switch p := msg.Payload.(type) {
	case core.SynthesizeRequest:
		return s.handleSynthesizeRequest(msg, p)
	case core.StopResearch:
		return s.Stop()
	default:
		return nil
	}
}

func (s *Synthesizer) handleSynthesizeRequest(msg core.Message, req core.SynthesizeRequest) error {
	synthesis, err := s.Synthesize(context.Background(), req.Input)
	if err != nil {
		return err
	}

	s.send(msg.From, core.SynthesisComplete{
		SynthesisID: synthesis.ID,
		Summary:     synthesis.Summary,
		KeyFindings: synthesis.KeyFindings,
	}, msg.Iteration)
	return nil
}

type llmKeyFinding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Importance  string   `json:"importance"`
	Sources     []string `json:"sources"`
}

type llmSection struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`
}

type llmSynthesis struct {
	Summary     string          `json:"summary"`
	KeyFindings []llmKeyFinding `json:"keyFindings"`
	Sections    []llmSection    `json:"sections"`
	Confidence  float64         `json:"confidence"`
}

// Synthesize produces a report from the working set. A completion failure is
// returned as an error; a malformed response degrades to a raw-text report
// so the session can still finish.
func (s *Synthesizer) Synthesize(ctx context.Context, input core.SynthesisInput) (*core.Synthesis, error) {
	s.setStatus(core.StatusSynthesizing)
	s.setProgress(0, "Starting synthesis")

	result, err := s.generate(ctx, input)
	if err != nil {
		s.setError(err)
		return nil, err
	}

	synthesis := &core.Synthesis{
		ID:          core.NewID(),
		SessionID:   s.sessionID,
		Iteration:   input.Iteration,
		IsFinal:     input.IsFinal,
		Summary:     result.Summary,
		KeyFindings: make([]core.KeyFinding, 0, len(result.KeyFindings)),
		Sections:    make([]core.SynthesisSection, 0, len(result.Sections)),
		Confidence:  result.Confidence,
		CreatedAt:   time.Now().UTC(),
	}
	for _, f := range result.KeyFindings {
		synthesis.KeyFindings = append(synthesis.KeyFindings, core.KeyFinding{
			Title:       f.Title,
			Description: f.Description,
			Importance:  f.Importance,
			Sources:     f.Sources,
		})
	}
	for _, sec := range result.Sections {
		synthesis.Sections = append(synthesis.Sections, core.SynthesisSection{
			Title:   sec.Title,
			Content: sec.Content,
			Sources: sec.Sources,
		})
	}

	s.mu.Lock()
	s.syntheses = append(s.syntheses, synthesis)
	s.mu.Unlock()

	s.setStatus(core.StatusCompleted)
	s.setProgress(100, "Synthesis complete")
	return synthesis, nil
}

// generate selects the prompt variant: final report, incremental update when
// a previous synthesis exists, or the full standard synthesis otherwise.
func (s *Synthesizer) generate(ctx context.Context, input core.SynthesisInput) (llmSynthesis, error) {
	findingsText := formatFindings(input.Findings)
	themesText := formatThemes(input.Themes)

	var prompt string
	switch {
	case input.IsFinal:
		prompt = render(finalSynthesisTmpl, finalSynthesisData{
			Topic:          s.topic,
			Iterations:     input.Iteration,
			SourceCount:    len(input.Findings),
			Findings:       findingsText,
			Themes:         themesText,
			Contradictions: formatContradictions(input.Contradictions),
			Gaps:           formatGaps(input.Gaps),
		})
	case input.Previous != nil:
		prev, _ := json.MarshalIndent(input.Previous, "", "  ")
		prompt = render(incrementalSynthesisTmpl, incrementalSynthesisData{
			Topic:       s.topic,
			Iteration:   input.Iteration,
			Previous:    string(prev),
			NewFindings: findingsText,
			Themes:      themesText,
		})
	default:
		prompt = render(synthesisTmpl, synthesisData{
			Topic:          s.topic,
			DepthLevel:     string(s.depthLevel),
			OutputStyle:    s.outputStyle,
			Instructions:   orDefault(s.instructions, "None"),
			Findings:       findingsText,
			Themes:         themesText,
			Contradictions: formatContradictions(input.Contradictions),
			Gaps:           formatGaps(input.Gaps),
		})
	}

	s.setProgress(30, "Generating synthesis")

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	raw, err := s.engine.Complete(callCtx, model.Request{
		System:      s.systemPrompt,
		Prompt:      prompt,
		Temperature: 0.4,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return llmSynthesis{}, err
	}

	s.setProgress(80, "Processing synthesis result")

	var result llmSynthesis
	if err := textparse.Extract(raw, &result); err != nil {
		s.logger.Warn("unparseable synthesis response", "error", err)
		return llmSynthesis{
			Summary:    truncateRunes(raw, degradedSummaryRunes),
			Sections:   []llmSection{{Title: degradedSectionTitle, Content: raw}},
			Confidence: degradedConfidence,
		}, nil
	}
	return result, nil
}

func formatFindings(findings []core.KnowledgeEntry) string {
	var sb strings.Builder
	for i, f := range findings {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n   Confidence: %.2f, Sources: %s",
			i+1, f.Category, f.Content, f.Confidence, strings.Join(f.Tags, ", "))
	}
	return sb.String()
}

func formatThemes(themes []core.Theme) string {
	var sb strings.Builder
	for _, t := range themes {
		fmt.Fprintf(&sb, "- %s: %s (strength: %.2f)\n", t.Title, t.Description, t.Strength)
	}
	return sb.String()
}

func formatContradictions(contradictions []core.Contradiction) string {
	if len(contradictions) == 0 {
		return "None identified"
	}
	var sb strings.Builder
	for _, c := range contradictions {
		sb.WriteString("- " + c.Description)
		if c.Resolved {
			sb.WriteString(" (resolved: " + c.Resolution + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatGaps(gaps []core.KnowledgeGap) string {
	if len(gaps) == 0 {
		return "None identified"
	}
	var sb strings.Builder
	for _, g := range gaps {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", g.Priority, g.Subtopic, g.Description)
	}
	return sb.String()
}
