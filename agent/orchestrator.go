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

// Evaluation decisions returned by the progress check.
const (
	decisionContinue   = "continue"
	decisionSynthesize = "synthesize"
	decisionExpand     = "expand"
)

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// ID overrides the generated agent identifier.
	ID string
	// Config bounds the resources of the session. Zero value selects the
	// defaults.
	Config core.ResearchConfig
	// PromptConfig customizes prompts for all three agent kinds.
	PromptConfig *core.PromptConfig
	// ExitCriteria governs when the iteration loop stops. Zero value selects
	// the defaults. MaxDurationMinutes of 0 means no wall-clock bound.
	ExitCriteria core.ExitCriteria
	// CallTimeout bounds each model completion call.
	CallTimeout time.Duration
	// Logger receives diagnostic output.
	Logger logging.Logger
}

// Orchestrator drives the full research workflow for one session: planning,
// the bounded iteration loop with researcher fan-out, merge, incremental
// synthesis and evaluation, and the final synthesis. Run executes the whole
// workflow in the calling goroutine; control requests (stop, feedback)
// arrive concurrently via the fabric or direct calls.
type Orchestrator struct {
	BaseAgent

	engine   model.Engine
	provider search.Provider
	pool     Pool

	topic        string
	config       core.ResearchConfig
	promptCfg    core.PromptConfig
	systemPrompt string
	callTimeout  time.Duration

	mu             sync.Mutex
	exit           core.ExitCriteria
	iteration      int
	startTime      time.Time
	running        bool
	plan           *core.ResearchPlan
	findings       []core.KnowledgeEntry
	themes         []core.Theme
	contradictions []core.Contradiction
	gaps           []core.KnowledgeGap
	syntheses      []*core.Synthesis
	feedback       []*core.UserFeedback
	researchers    []*Researcher
	synthesizer    *Synthesizer
	eventFns       map[int]func(core.Event)
	nextEventID    int
}

// NewOrchestrator constructs the orchestrator for a session researching the
// given topic.
func NewOrchestrator(fab *fabric.Fabric, engine model.Engine, provider search.Provider, pool Pool, sessionID, topic string, optFns ...func(o *OrchestratorOptions)) *Orchestrator {
	opts := OrchestratorOptions{
		Config:       core.DefaultResearchConfig(),
		ExitCriteria: core.DefaultExitCriteria(),
		CallTimeout:  2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.MaxAgents == 0 {
		opts.Config = core.DefaultResearchConfig()
	}
	if opts.ExitCriteria.MaxIterations == 0 {
		opts.ExitCriteria = core.DefaultExitCriteria()
	}

	var promptCfg core.PromptConfig
	if opts.PromptConfig != nil {
		promptCfg = *opts.PromptConfig
	}

	o := &Orchestrator{
		BaseAgent:    newBase(opts.ID, core.RoleOrchestrator, sessionID, fab, opts.Logger),
		engine:       engine,
		provider:     provider,
		pool:         pool,
		topic:        topic,
		config:       opts.Config,
		promptCfg:    promptCfg,
		systemPrompt: orDefault(promptCfg.OrchestratorPrompt, orchestratorSystemPrompt),
		callTimeout:  opts.CallTimeout,
		exit:         opts.ExitCriteria,
		eventFns:     make(map[int]func(core.Event)),
	}
	o.bind(o.HandleMessage)
	return o
}

// OnEvent registers a callback observing workflow lifecycle events and
// returns an unsubscribe closure. Callbacks run synchronously in emission
// order and must not block.
func (o *Orchestrator) OnEvent(fn func(core.Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextEventID
	o.nextEventID++
	o.eventFns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.eventFns, id)
	}
}

func (o *Orchestrator) emit(e core.Event) {
	o.mu.Lock()
	fns := make([]func(core.Event), 0, len(o.eventFns))
	for _, fn := range o.eventFns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Run executes the research workflow to completion. It returns once the
// final synthesis has been produced or a hard failure occurred. Only one Run
// per orchestrator may be active.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return &core.StateError{Op: "run", Reason: "orchestrator already running"}
	}
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if err := o.run(ctx); err != nil {
		o.setError(err)
		o.emit(core.SessionFailed{SessionID: o.sessionID, Err: err})
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context) error {
	o.setStatus(core.StatusPlanning)
	o.setProgress(5, "Creating research plan")

	plan, err := o.createPlan(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.plan = plan
	o.mu.Unlock()
	o.emit(core.PlanCreated{SessionID: o.sessionID, Plan: plan})

	synth := NewSynthesizer(o.fab, o.engine, o.sessionID, o.topic, func(so *SynthesizerOptions) {
		so.DepthLevel = o.config.DepthLevel
		so.OutputStyle = orDefault(o.promptCfg.OutputTone, "formal")
		so.Instructions = o.promptCfg.SynthesizerInstructions
		so.SystemPrompt = o.promptCfg.SynthesizerPrompt
		so.CallTimeout = o.callTimeout
		so.Logger = o.logger
	})
	if err := o.pool.AddAgent(synth); err != nil {
		return err
	}
	o.mu.Lock()
	o.synthesizer = synth
	o.mu.Unlock()

	for o.shouldContinue() {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.Lock()
		o.iteration++
		iteration := o.iteration
		o.mu.Unlock()

		o.emit(core.IterationStarted{SessionID: o.sessionID, Iteration: iteration})
		o.setStatus(core.StatusSearching)

		if err := o.executeResearchIteration(ctx, iteration); err != nil {
			return err
		}

		o.processFeedback()

		merge, err := o.mergeFindings(ctx)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.themes = merge.themes
		o.contradictions = merge.contradictions
		o.mu.Unlock()
		o.reconcileGaps(merge.gaps)

		o.emit(core.SynthesisStarted{SessionID: o.sessionID, Iteration: iteration, IsFinal: false})
		synthesis, err := synth.Synthesize(ctx, o.synthesisInput(iteration, false, true))
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.syntheses = append(o.syntheses, synthesis)
		findingCount := len(o.findings)
		o.mu.Unlock()
		o.emit(core.SynthesisCompleted{SessionID: o.sessionID, Synthesis: synthesis})
		o.emit(core.IterationCompleted{SessionID: o.sessionID, Iteration: iteration, FindingCount: findingCount})

		eval, err := o.evaluateProgress(ctx)
		if err != nil {
			return err
		}
		if eval.Decision == decisionSynthesize {
			break
		}
		if eval.Decision == decisionExpand && len(eval.NewSubtopics) > 0 {
			o.mu.Lock()
			for _, st := range eval.NewSubtopics {
				o.plan.Subtopics = append(o.plan.Subtopics, st.toSubtopic())
			}
			o.mu.Unlock()
		}
	}

	o.setStatus(core.StatusSynthesizing)
	o.setProgress(90, "Generating final synthesis")

	o.mu.Lock()
	iteration := o.iteration
	o.mu.Unlock()

	o.emit(core.SynthesisStarted{SessionID: o.sessionID, Iteration: iteration, IsFinal: true})
	final, err := synth.Synthesize(ctx, o.synthesisInput(iteration, true, false))
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.syntheses = append(o.syntheses, final)
	o.mu.Unlock()

	o.emit(core.SynthesisCompleted{SessionID: o.sessionID, Synthesis: final})
	o.emit(core.ResearchCompleted{SessionID: o.sessionID, Synthesis: final})

	o.setStatus(core.StatusCompleted)
	o.setProgress(100, "Research complete")
	return nil
}

// HandleMessage reacts to control messages. Finding reports are collected at
// the iteration join, not here; synthesis completion is consumed by the
// direct Synthesize call.
func (o *Orchestrator) HandleMessage(msg core.Message) error {
	switch p := msg.Payload.(type) {
	case core.FindingReport, core.SynthesisComplete:
		return nil
	case core.FeedbackPayload:
		o.AddFeedback(&core.UserFeedback{
			ID:        core.NewID(),
			SessionID: o.sessionID,
			Iteration: o.CurrentIteration(),
			Type:      p.Type,
			Content:   p.Content,
			CreatedAt: time.Now().UTC(),
		})
		return nil
	case core.StopRequest:
		o.RequestStop()
		return nil
	default:
		return nil
	}
}

// AddFeedback queues user feedback for the next iteration boundary. Stop
// feedback additionally clamps the iteration bound immediately.
func (o *Orchestrator) AddFeedback(fb *core.UserFeedback) {
	o.mu.Lock()
	o.feedback = append(o.feedback, fb)
	if fb.Type == core.FeedbackStop {
		o.exit.MaxIterations = o.iteration
	}
	o.mu.Unlock()
}

// RequestStop asks the loop to finish after the current iteration by
// clamping the iteration bound. The final synthesis still runs.
func (o *Orchestrator) RequestStop() {
	o.mu.Lock()
	o.exit.MaxIterations = o.iteration
	o.mu.Unlock()
}

// Plan returns the current research plan, nil before planning completed.
func (o *Orchestrator) Plan() *core.ResearchPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// Findings returns a copy of all findings accumulated so far.
func (o *Orchestrator) Findings() []core.KnowledgeEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.KnowledgeEntry, len(o.findings))
	copy(out, o.findings)
	return out
}

// Syntheses returns a copy of all syntheses produced so far, oldest first.
func (o *Orchestrator) Syntheses() []*core.Synthesis {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*core.Synthesis, len(o.syntheses))
	copy(out, o.syntheses)
	return out
}

// LatestSynthesis returns the most recent synthesis or nil.
func (o *Orchestrator) LatestSynthesis() *core.Synthesis {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.syntheses) == 0 {
		return nil
	}
	return o.syntheses[len(o.syntheses)-1]
}

// Gaps returns a copy of the current knowledge gaps.
func (o *Orchestrator) Gaps() []core.KnowledgeGap {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.KnowledgeGap, len(o.gaps))
	copy(out, o.gaps)
	return out
}

// CurrentIteration returns the number of the running or last iteration.
func (o *Orchestrator) CurrentIteration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iteration
}

type planSubtopic struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	SearchQueries []string `json:"searchQueries"`
}

func (p planSubtopic) toSubtopic() *core.Subtopic {
	id := p.ID
	if id == "" {
		id = core.NewID()
	}
	return &core.Subtopic{
		ID:            id,
		Title:         p.Title,
		Description:   p.Description,
		SearchQueries: p.SearchQueries,
	}
}

type planDoc struct {
	MainTopic string         `json:"mainTopic"`
	Strategy  string         `json:"strategy"`
	Subtopics []planSubtopic `json:"subtopics"`
}

// createPlan asks the model to decompose the topic. A malformed response
// falls back to a single subtopic covering the whole topic so the loop can
// still make progress; a completion failure aborts the run.
func (o *Orchestrator) createPlan(ctx context.Context) (*core.ResearchPlan, error) {
	prompt := render(planningTmpl, planningData{
		Topic:         o.topic,
		FocusAreas:    orDefault(strings.Join(o.config.FocusAreas, ", "), "None specified"),
		ExcludeTopics: orDefault(strings.Join(o.config.ExcludeTopics, ", "), "None specified"),
		DepthLevel:    string(o.config.DepthLevel),
		Instructions:  orDefault(o.promptCfg.OrchestratorInstructions, "None"),
		SubtopicCount: o.config.DepthLevel.SubtopicCount(),
	})

	raw, err := o.complete(ctx, prompt, 0.5, 0)
	if err != nil {
		return nil, err
	}

	var doc planDoc
	if err := textparse.Extract(raw, &doc); err != nil {
		o.logger.Warn("unparseable plan response, using fallback plan", "error", err)
		return &core.ResearchPlan{
			MainTopic: o.topic,
			Strategy:  "General research approach",
			Subtopics: []*core.Subtopic{{
				ID:          core.NewID(),
				Title:       o.topic,
				Description: "Research the main topic: " + o.topic,
				SearchQueries: []string{
					o.topic,
					o.topic + " overview",
					o.topic + " explained",
				},
			}},
		}, nil
	}

	plan := &core.ResearchPlan{
		MainTopic: orDefault(doc.MainTopic, o.topic),
		Strategy:  doc.Strategy,
		Subtopics: make([]*core.Subtopic, 0, len(doc.Subtopics)),
	}
	for _, st := range doc.Subtopics {
		plan.Subtopics = append(plan.Subtopics, st.toSubtopic())
	}
	return plan, nil
}

// executeResearchIteration fans a batch of pending subtopics out to fresh
// researchers and joins on their completion. A subtopic is marked completed
// whether its researcher succeeded or failed; partial results are whatever
// the researcher accumulated.
func (o *Orchestrator) executeResearchIteration(ctx context.Context, iteration int) error {
	o.mu.Lock()
	var pending []*core.Subtopic
	for _, st := range o.plan.Subtopics {
		if st.Pending() {
			pending = append(pending, st)
		}
	}
	batch := pending[:min(len(pending), o.config.MaxAgents)]
	for _, st := range batch {
		st.Status = core.SubtopicInProgress
	}
	previous := o.researchers
	o.researchers = nil
	o.mu.Unlock()

	for _, r := range previous {
		if err := o.pool.RemoveAgent(r.ID()); err != nil {
			o.logger.Warn("failed to remove researcher", "agent_id", r.ID(), "error", err)
		}
	}

	type assignment struct {
		subtopic   *core.Subtopic
		researcher *Researcher
	}
	assignments := make([]assignment, 0, len(batch))

	for _, st := range batch {
		r := NewResearcher(o.fab, o.engine, o.provider, o.sessionID, func(ro *ResearcherOptions) {
			ro.MaxSearches = o.config.MaxSearchesPerAgent
			ro.SystemPrompt = o.promptCfg.ResearcherPrompt
			ro.CallTimeout = o.callTimeout
			ro.Logger = o.logger
		})
		if err := o.pool.AddAgent(r); err != nil {
			return err
		}
		assignments = append(assignments, assignment{subtopic: st, researcher: r})
	}

	o.mu.Lock()
	for _, a := range assignments {
		o.researchers = append(o.researchers, a.researcher)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range assignments {
		wg.Add(1)
		go func(a assignment) {
			defer wg.Done()
			// Delivery is synchronous, so the researcher has finished its
			// task when Send returns.
			o.fab.Send(o.id, a.researcher.ID(), core.AssignTask{
				Subtopic:      a.subtopic.Title,
				SearchQueries: a.subtopic.SearchQueries,
				Instructions:  o.promptCfg.ResearcherInstructions,
			}, o.sessionID, iteration)
		}(a)
	}
	wg.Wait()

	o.mu.Lock()
	for _, a := range assignments {
		a.subtopic.Status = core.SubtopicCompleted
		o.findings = append(o.findings, a.researcher.Findings()...)
	}
	o.mu.Unlock()

	return ctx.Err()
}

// processFeedback drains queued feedback exactly once. Redirect feedback
// injects a new subtopic derived from its content.
func (o *Orchestrator) processFeedback() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, fb := range o.feedback {
		if fb.Processed {
			continue
		}
		fb.Processed = true

		if fb.Type == core.FeedbackRedirect {
			o.plan.Subtopics = append(o.plan.Subtopics, &core.Subtopic{
				ID:            core.NewID(),
				Title:         fb.Content,
				Description:   "User requested focus on: " + fb.Content,
				SearchQueries: []string{fb.Content},
			})
		}
	}
}

type mergeResult struct {
	themes         []core.Theme
	contradictions []core.Contradiction
	gaps           []core.KnowledgeGap
	confidence     float64
}

type mergeDoc struct {
	KeyThemes []struct {
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		SupportingFindings []string `json:"supportingFindings"`
		Strength           float64  `json:"strength"`
	} `json:"keyThemes"`
	Contradictions []struct {
		Description string   `json:"description"`
		Findings    []string `json:"findings"`
	} `json:"contradictions"`
	Gaps []struct {
		Subtopic         string   `json:"subtopic"`
		Description      string   `json:"description"`
		Priority         string   `json:"priority"`
		SuggestedQueries []string `json:"suggestedQueries"`
	} `json:"gaps"`
	OverallConfidence float64 `json:"overallConfidence"`
}

// mergeFindings recomputes themes and contradictions from the full findings
// set and extracts fresh gaps. With no findings it short-circuits to empty
// aggregates at confidence 0; a malformed response yields empty aggregates
// at confidence 0.5.
func (o *Orchestrator) mergeFindings(ctx context.Context) (mergeResult, error) {
	o.mu.Lock()
	findings := make([]core.KnowledgeEntry, len(o.findings))
	copy(findings, o.findings)
	iteration := o.iteration
	o.mu.Unlock()

	if len(findings) == 0 {
		return mergeResult{}, nil
	}

	var sb strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&sb, "[%s] %s: %s (confidence: %.2f)\n", f.ID, f.Category, f.Content, f.Confidence)
	}

	prompt := render(mergeTmpl, mergeData{Topic: o.topic, Findings: sb.String()})

	raw, err := o.complete(ctx, prompt, 0.3, 0)
	if err != nil {
		return mergeResult{}, err
	}

	var doc mergeDoc
	if err := textparse.Extract(raw, &doc); err != nil {
		o.logger.Warn("unparseable merge response", "error", err)
		return mergeResult{confidence: 0.5}, nil
	}

	result := mergeResult{confidence: doc.OverallConfidence}
	for _, t := range doc.KeyThemes {
		result.themes = append(result.themes, core.Theme{
			ID:                core.NewID(),
			Title:             t.Title,
			Description:       t.Description,
			SupportingEntries: t.SupportingFindings,
			Strength:          t.Strength,
		})
	}
	for _, c := range doc.Contradictions {
		result.contradictions = append(result.contradictions, core.Contradiction{
			ID:          core.NewID(),
			Description: c.Description,
			Entries:     c.Findings,
		})
	}
	for _, g := range doc.Gaps {
		result.gaps = append(result.gaps, core.KnowledgeGap{
			ID:               core.NewID(),
			SessionID:        o.sessionID,
			Iteration:        iteration,
			Subtopic:         g.Subtopic,
			Description:      g.Description,
			Priority:         core.GapPriority(g.Priority),
			SuggestedQueries: g.SuggestedQueries,
			CreatedAt:        time.Now().UTC(),
		})
	}
	return result, nil
}

// reconcileGaps merges freshly extracted gaps into the persistent gap list
// by identity on (subtopic, description): existing gaps not reproduced are
// marked resolved, unseen gaps are appended.
func (o *Orchestrator) reconcileGaps(fresh []core.KnowledgeGap) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.gaps {
		stillExists := false
		for _, g := range fresh {
			if g.Subtopic == o.gaps[i].Subtopic && g.Description == o.gaps[i].Description {
				stillExists = true
				break
			}
		}
		if !stillExists {
			o.gaps[i].Resolved = true
		}
	}

	for _, g := range fresh {
		exists := false
		for i := range o.gaps {
			if o.gaps[i].Subtopic == g.Subtopic && o.gaps[i].Description == g.Description {
				exists = true
				break
			}
		}
		if !exists {
			o.gaps = append(o.gaps, g)
		}
	}
}

type evalResult struct {
	Decision     string         `json:"decision"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning"`
	NewSubtopics []planSubtopic `json:"newSubtopics"`
	FocusAreas   []string       `json:"focusAreas"`
}

// evaluateProgress asks the model whether to continue, synthesize or expand.
// A malformed response defaults to continuing so the iteration bounds decide.
func (o *Orchestrator) evaluateProgress(ctx context.Context) (evalResult, error) {
	o.mu.Lock()
	var coverage strings.Builder
	for _, st := range o.plan.Subtopics {
		status := st.Status
		if status == "" {
			status = core.SubtopicPending
		}
		fmt.Fprintf(&coverage, "%s: %s\n", st.Title, status)
	}

	findingsSummary := "No findings yet"
	if len(o.findings) > 0 {
		var sum float64
		for _, f := range o.findings {
			sum += f.Confidence
		}
		findingsSummary = fmt.Sprintf("%d findings collected with average confidence %.2f",
			len(o.findings), sum/float64(len(o.findings)))
	}

	var gapsText strings.Builder
	for _, g := range o.gaps {
		if !g.Resolved {
			fmt.Fprintf(&gapsText, "[%s] %s\n", g.Priority, g.Description)
		}
	}

	var feedbackParts []string
	for _, fb := range o.feedback {
		feedbackParts = append(feedbackParts, fb.Content)
	}

	iteration := o.iteration
	maxIterations := o.exit.MaxIterations
	o.mu.Unlock()

	prompt := render(evaluationTmpl, evaluationData{
		Topic:           o.topic,
		Iteration:       iteration,
		MaxIterations:   maxIterations,
		Coverage:        coverage.String(),
		FindingsSummary: findingsSummary,
		Gaps:            orDefault(gapsText.String(), "None"),
		Feedback:        orDefault(strings.Join(feedbackParts, "; "), "None"),
	})

	raw, err := o.complete(ctx, prompt, 0.3, 0)
	if err != nil {
		return evalResult{}, err
	}

	var result evalResult
	if err := textparse.Extract(raw, &result); err != nil {
		o.logger.Warn("unparseable evaluation response", "error", err)
		return evalResult{
			Decision:   decisionContinue,
			Confidence: 0.5,
			Reasoning:  "Unable to evaluate, continuing by default",
		}, nil
	}
	return result, nil
}

// shouldContinue checks the loop bounds: iteration count, wall clock and
// whether any subtopic is still pending. Before the first iteration the plan
// check keeps the loop alive as long as the plan has work.
func (o *Orchestrator) shouldContinue() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.iteration >= o.exit.MaxIterations {
		return false
	}

	if o.exit.MaxDurationMinutes > 0 {
		elapsed := time.Since(o.startTime).Minutes()
		if elapsed >= float64(o.exit.MaxDurationMinutes) {
			return false
		}
	}

	completed := 0
	total := 1
	if o.plan != nil {
		total = max(len(o.plan.Subtopics), 1)
		for _, st := range o.plan.Subtopics {
			if st.Status == core.SubtopicCompleted {
				completed++
			}
		}
	}
	return completed < total
}

func (o *Orchestrator) synthesisInput(iteration int, isFinal, withPrevious bool) core.SynthesisInput {
	o.mu.Lock()
	defer o.mu.Unlock()

	input := core.SynthesisInput{
		Findings:       append([]core.KnowledgeEntry(nil), o.findings...),
		Themes:         append([]core.Theme(nil), o.themes...),
		Contradictions: append([]core.Contradiction(nil), o.contradictions...),
		Gaps:           append([]core.KnowledgeGap(nil), o.gaps...),
		Iteration:      iteration,
		IsFinal:        isFinal,
	}
	if withPrevious && len(o.syntheses) > 0 {
		input.Previous = o.syntheses[len(o.syntheses)-1]
	}
	return input
}

func (o *Orchestrator) complete(ctx context.Context, prompt string, temperature float64, maxTokens int64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := o.engine.Complete(callCtx, model.Request{
		System:      o.systemPrompt,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if ml, ok := o.logger.(logging.ModelCallLogger); ok {
		ml.LogModelCall(model.Name(o.engine), time.Since(start), err == nil, err)
	} else {
		o.logger.Debug("orchestrator completion", "duration", time.Since(start), "error", err)
	}
	return raw, err
}
