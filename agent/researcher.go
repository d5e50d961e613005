package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/textparse"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
)

const (
	searchResultLimit = 5
	pageFetchLimit    = 3
	pageExcerptRunes  = 2000
)

// ResearcherOptions configures a Researcher.
type ResearcherOptions struct {
	// ID overrides the generated agent identifier.
	ID string
	// MaxSearches bounds the number of queries executed per task.
	MaxSearches int
	// SystemPrompt replaces the built-in researcher system prompt.
	SystemPrompt string
	// CallTimeout bounds each model completion call.
	CallTimeout time.Duration
	// Logger receives diagnostic output.
	Logger logging.Logger
}

// Researcher executes bounded search and analysis cycles for one assigned
// subtopic. It reacts to task assignment, clarification, expansion and stop
// messages and reports extracted findings back to its orchestrator.
type Researcher struct {
	BaseAgent

	engine   model.Engine
	provider search.Provider

	maxSearches  int
	systemPrompt string
	callTimeout  time.Duration

	mu        sync.Mutex
	iteration int
	queries   []string
	findings  []core.KnowledgeEntry
}

// NewResearcher constructs a researcher for the given session.
func NewResearcher(fab *fabric.Fabric, engine model.Engine, provider search.Provider, sessionID string, optFns ...func(o *ResearcherOptions)) *Researcher {
	opts := ResearcherOptions{
		MaxSearches: core.DefaultResearchConfig().MaxSearchesPerAgent,
		CallTimeout: 2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Researcher{
		BaseAgent:    newBase(opts.ID, core.RoleResearcher, sessionID, fab, opts.Logger),
		engine:       engine,
		provider:     provider,
		maxSearches:  opts.MaxSearches,
		systemPrompt: orDefault(opts.SystemPrompt, researcherSystemPrompt),
		callTimeout:  opts.CallTimeout,
	}
	r.bind(r.HandleMessage)
	return r
}

// Start subscribes the researcher on the fabric and parks it waiting for a
// task assignment.
func (r *Researcher) Start() error {
	if err := r.BaseAgent.Start(); err != nil {
		return err
	}
	r.setStatus(core.StatusWaiting)
	return nil
}

// Findings returns a copy of all findings this researcher has produced.
func (r *Researcher) Findings() []core.KnowledgeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.KnowledgeEntry, len(r.findings))
	copy(out, r.findings)
	return out
}

// HandleMessage dispatches on the payload kind. Unknown payloads are ignored.
func (r *Researcher) HandleMessage(msg core.Message) error {
	switch p := msg.Payload.(type) {
	case core.AssignTask:
		return r.handleAssignTask(msg, p)
	case core.RequestClarification:
		return r.handleClarification(msg, p)
	case core.ExpandResearch:
		return r.handleExpand(msg, p)
	case core.StopResearch:
		return r.Stop()
	default:
		return nil
	}
}

func (r *Researcher) handleAssignTask(msg core.Message, task core.AssignTask) error {
	r.setSubtopic(task.Subtopic)
	r.mu.Lock()
	r.iteration = msg.Iteration
	r.queries = append([]string(nil), task.SearchQueries...)
	r.mu.Unlock()

	r.setStatus(core.StatusSearching)
	r.setProgress(0, "Researching: "+task.Subtopic)

	findings, err := r.executeResearch(context.Background(), task.Subtopic, task.SearchQueries, msg.Iteration)
	if err != nil {
		r.setError(err)
		return err
	}

	r.mu.Lock()
	r.findings = append(r.findings, findings...)
	r.mu.Unlock()

	r.send(msg.From, core.FindingReport{Findings: findings}, msg.Iteration)

	r.setStatus(core.StatusCompleted)
	r.setProgress(100, "Research complete")
	return nil
}

// executeResearch runs the bounded search cycle. Failures of individual
// queries are logged and skipped; only context cancellation aborts the whole
// task.
func (r *Researcher) executeResearch(ctx context.Context, subtopic string, queries []string, iteration int) ([]core.KnowledgeEntry, error) {
	var entries []core.KnowledgeEntry
	total := min(len(queries), r.maxSearches)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		query := queries[i]
		share := float64(i+1) / float64(total) * 100

		r.setProgress(share*0.5, "Searching: "+query)
		results, err := r.provider.Search(ctx, query, searchResultLimit)
		if err != nil {
			r.logger.Warn("search failed", "query", query, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}

		r.setProgress(share*0.6, "Analyzing results for: "+query)

		var pages []*search.Page
		for _, res := range results[:min(len(results), pageFetchLimit)] {
			page, err := r.provider.FetchPage(ctx, res.URL)
			if err != nil {
				r.logger.Debug("page fetch failed", "url", res.URL, "error", err)
				continue
			}
			pages = append(pages, page)
		}

		analysis, err := r.analyzeResults(ctx, subtopic, query, results, pages)
		if err != nil {
			r.logger.Warn("analysis failed", "query", query, "error", err)
			continue
		}

		for _, f := range analysis.Findings {
			tags := append([]string(nil), f.Tags...)
			for _, src := range f.Sources {
				if src.URL != "" {
					tags = append(tags, src.URL)
				}
			}
			entries = append(entries, core.KnowledgeEntry{
				ID:         core.NewID(),
				SessionID:  r.sessionID,
				AgentID:    r.id,
				Iteration:  iteration,
				Content:    f.Content,
				Summary:    f.Summary,
				Category:   subtopic,
				Tags:       tags,
				Confidence: f.Confidence,
				Relevance:  f.Relevance,
				Novelty:    1.0,
				Version:    1,
				CreatedAt:  time.Now().UTC(),
			})
		}
	}

	return entries, nil
}

type analyzedSource struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Excerpt     string  `json:"excerpt"`
	Reliability float64 `json:"reliability"`
}

type analyzedFinding struct {
	Content    string           `json:"content"`
	Summary    string           `json:"summary"`
	Confidence float64          `json:"confidence"`
	Relevance  float64          `json:"relevance"`
	Sources    []analyzedSource `json:"sources"`
	Tags       []string         `json:"tags"`
}

type analysisResult struct {
	Findings          []analyzedFinding `json:"findings"`
	SuggestedFollowUp []string          `json:"suggestedFollowUp"`
	Gaps              []string          `json:"gaps"`
}

// analyzeResults asks the model to extract findings from the gathered
// material. A malformed response yields an empty result, not an error.
func (r *Researcher) analyzeResults(ctx context.Context, subtopic, query string, results []search.Result, pages []*search.Page) (analysisResult, error) {
	var sb strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n   Snippet: %s\n\n", i+1, res.Title, res.URL, res.Snippet)
	}

	var pb strings.Builder
	for i, p := range pages {
		if i > 0 {
			pb.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&pb, "### %s (%s)\n%s...\n", p.Title, p.URL, truncateRunes(p.Content, pageExcerptRunes))
	}

	prompt := render(analyzeTmpl, analyzeData{
		Subtopic:      subtopic,
		Query:         query,
		SearchResults: sb.String(),
		PageContent:   pb.String(),
	})

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := r.engine.Complete(callCtx, model.Request{
		System:      r.systemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
	})
	if err != nil {
		return analysisResult{}, err
	}
	r.logger.Debug("analysis completed", "query", query, "duration", time.Since(start))

	var result analysisResult
	if err := textparse.Extract(raw, &result); err != nil {
		r.logger.Warn("unparseable analysis response", "query", query, "error", err)
		return analysisResult{}, nil
	}
	return result, nil
}

func (r *Researcher) handleClarification(msg core.Message, _ core.RequestClarification) error {
	r.setStatus(core.StatusAnalyzing)
	r.send(msg.From, core.ClarificationResponse{Clarified: true}, msg.Iteration)
	return nil
}

// handleExpand appends the additional queries and runs them against the
// already assigned subtopic.
func (r *Researcher) handleExpand(msg core.Message, expand core.ExpandResearch) error {
	if len(expand.AdditionalQueries) == 0 {
		return nil
	}

	r.mu.Lock()
	r.queries = append(r.queries, expand.AdditionalQueries...)
	r.mu.Unlock()

	subtopic := r.State().AssignedSubtopic
	if subtopic == "" {
		subtopic = "general"
	}

	findings, err := r.executeResearch(context.Background(), subtopic, expand.AdditionalQueries, msg.Iteration)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.findings = append(r.findings, findings...)
	r.mu.Unlock()
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
