package agent

import (
	"strings"
	"text/template"
)

// System prompts for the three agent kinds. A PromptConfig may replace them
// wholesale; the per-operation templates below are always used.
const (
	orchestratorSystemPrompt = `You are a Research Orchestrator managing a deep research session.

Your responsibilities:
1. Analyze the research topic and create a comprehensive plan
2. Break down the topic into subtopics for parallel research
3. Assign tasks to researcher agents
4. Evaluate incoming findings for quality and relevance
5. Identify gaps, contradictions, and areas needing clarification
6. Decide when research is sufficient to synthesize
7. Coordinate the final synthesis

Decision guidelines:
- Request clarification when findings are ambiguous
- Expand research when coverage is insufficient
- Stop when confidence threshold is met or saturation is reached
- Always consider user feedback in your decisions

You must respond with valid JSON only.`

	researcherSystemPrompt = `You are a Research Agent conducting focused investigation on a specific subtopic.

Your responsibilities:
1. Execute targeted web searches based on your assigned queries
2. Analyze search results and extract relevant information
3. Assess source credibility and assign confidence scores
4. Identify key findings and supporting evidence
5. Note contradictions or gaps in available information
6. Suggest follow-up queries for deeper investigation

Research guidelines:
- Prioritize authoritative and recent sources
- Cross-reference claims across multiple sources
- Clearly distinguish facts from opinions
- Note uncertainty when information is conflicting

You must respond with valid JSON only.`

	synthesizerSystemPrompt = `You are a Research Synthesizer creating comprehensive summaries from collected findings.

Your responsibilities:
1. Aggregate findings from all research agents
2. Identify overarching themes and patterns
3. Resolve or highlight contradictions
4. Create a coherent narrative from disparate sources
5. Ensure all claims are properly attributed
6. Generate structured output with clear sections

Synthesis guidelines:
- Lead with the most important findings
- Group related information logically
- Maintain source attribution throughout
- Indicate confidence levels for conclusions
- Highlight areas of uncertainty or debate

You must respond with valid JSON only.`
)

var planningTmpl = template.Must(template.New("planning").Parse(`Given the following research topic, create a comprehensive research plan.

Topic: {{.Topic}}

User's focus areas: {{.FocusAreas}}
Areas to exclude: {{.ExcludeTopics}}
Research depth: {{.DepthLevel}}
Custom instructions: {{.Instructions}}

Create a research plan with the following JSON structure:
{
  "mainTopic": "The main research topic",
  "strategy": "Brief description of the research strategy",
  "subtopics": [
    {
      "id": "unique-id",
      "title": "Subtopic title",
      "description": "Brief description of what to research",
      "searchQueries": ["query 1", "query 2", "query 3"]
    }
  ]
}

Generate {{.SubtopicCount}} subtopics that cover different aspects of the main topic.
Each subtopic should have 3-5 search queries.

Respond with ONLY the JSON, no additional text.`))

type planningData struct {
	Topic         string
	FocusAreas    string
	ExcludeTopics string
	DepthLevel    string
	Instructions  string
	SubtopicCount int
}

var evaluationTmpl = template.Must(template.New("evaluation").Parse(`Evaluate the current research progress and decide on next steps.

Main topic: {{.Topic}}
Current iteration: {{.Iteration}}
Max iterations: {{.MaxIterations}}

Subtopics coverage:
{{.Coverage}}

Current findings summary:
{{.FindingsSummary}}

Knowledge gaps identified:
{{.Gaps}}

User feedback (if any): {{.Feedback}}

Based on this information, respond with a JSON object:
{
  "decision": "continue" | "synthesize" | "expand",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation of the decision",
  "newSubtopics": [...] // Only if decision is "expand"
  "focusAreas": [...] // Areas to prioritize in next iteration
}

Respond with ONLY the JSON, no additional text.`))

type evaluationData struct {
	Topic           string
	Iteration       int
	MaxIterations   int
	Coverage        string
	FindingsSummary string
	Gaps            string
	Feedback        string
}

var mergeTmpl = template.Must(template.New("merge").Parse(`Analyze and merge the following research findings, identifying key themes, contradictions, and gaps.

Topic: {{.Topic}}

Findings from researchers:
{{.Findings}}

Respond with a JSON object:
{
  "keyThemes": [
    {
      "title": "Theme title",
      "description": "Theme description",
      "supportingFindings": ["finding-id-1", "finding-id-2"],
      "strength": 0.0-1.0
    }
  ],
  "contradictions": [
    {
      "description": "Description of the contradiction",
      "findings": ["finding-id-1", "finding-id-2"]
    }
  ],
  "gaps": [
    {
      "subtopic": "Area lacking coverage",
      "description": "What information is missing",
      "priority": "high" | "medium" | "low",
      "suggestedQueries": ["query 1", "query 2"]
    }
  ],
  "overallConfidence": 0.0-1.0
}

Respond with ONLY the JSON, no additional text.`))

type mergeData struct {
	Topic    string
	Findings string
}

var analyzeTmpl = template.Must(template.New("analyze").Parse(`Analyze the following search results and web page content for the given subtopic.

Subtopic: {{.Subtopic}}
Search query: {{.Query}}

Search results:
{{.SearchResults}}

Page content (excerpts):
{{.PageContent}}

Extract key findings and respond with a JSON object:
{
  "findings": [
    {
      "content": "The key finding or fact discovered",
      "summary": "One-line summary",
      "confidence": 0.0-1.0,
      "relevance": 0.0-1.0,
      "sources": [
        {
          "url": "source URL",
          "title": "source title",
          "excerpt": "relevant quote from the source",
          "reliability": 0.0-1.0
        }
      ],
      "tags": ["tag1", "tag2"]
    }
  ],
  "suggestedFollowUp": ["follow-up query 1", "follow-up query 2"],
  "gaps": ["identified gap 1", "identified gap 2"]
}

Focus on extracting factual, verifiable information. Assign lower confidence scores to:
- Information from a single source
- Opinions or unverified claims
- Outdated information
- Information from unreliable sources

Respond with ONLY the JSON, no additional text.`))

type analyzeData struct {
	Subtopic      string
	Query         string
	SearchResults string
	PageContent   string
}

var synthesisTmpl = template.Must(template.New("synthesis").Parse(`Create a comprehensive synthesis of the following research findings.

Main topic: {{.Topic}}
Research depth: {{.DepthLevel}}
Output style: {{.OutputStyle}}
Custom instructions: {{.Instructions}}

All findings from research:
{{.Findings}}

Key themes identified:
{{.Themes}}

Known contradictions:
{{.Contradictions}}

Knowledge gaps:
{{.Gaps}}

Create a synthesis with the following JSON structure:
{
  "summary": "A comprehensive executive summary (2-4 paragraphs)",
  "keyFindings": [
    {
      "title": "Finding title",
      "description": "Detailed description of the finding",
      "importance": "high" | "medium" | "low",
      "sources": ["source-url-1", "source-url-2"]
    }
  ],
  "sections": [
    {
      "title": "Section title",
      "content": "Detailed content for this section (markdown formatted)",
      "sources": ["source-url-1", "source-url-2"]
    }
  ],
  "confidence": 0.0-1.0,
  "limitations": ["Limitation 1", "Limitation 2"],
  "suggestedFurtherResearch": ["Topic 1", "Topic 2"]
}

Requirements:
- Summary should capture the most important insights
- Key findings should be ordered by importance
- Sections should cover different aspects of the topic logically
- All claims should cite sources
- Confidence should reflect the overall quality and consistency of findings

Respond with ONLY the JSON, no additional text.`))

type synthesisData struct {
	Topic          string
	DepthLevel     string
	OutputStyle    string
	Instructions   string
	Findings       string
	Themes         string
	Contradictions string
	Gaps           string
}

var incrementalSynthesisTmpl = template.Must(template.New("incremental").Parse(`Update the synthesis with new findings from the latest research iteration.

Main topic: {{.Topic}}
Iteration: {{.Iteration}}

Previous synthesis:
{{.Previous}}

New findings from this iteration:
{{.NewFindings}}

Updated themes:
{{.Themes}}

Create an updated synthesis that incorporates the new findings:
{
  "summary": "Updated executive summary",
  "keyFindings": [...],
  "sections": [...],
  "confidence": 0.0-1.0,
  "changesFromPrevious": "Brief description of what changed",
  "newInsights": ["New insight 1", "New insight 2"]
}

Respond with ONLY the JSON, no additional text.`))

type incrementalSynthesisData struct {
	Topic       string
	Iteration   int
	Previous    string
	NewFindings string
	Themes      string
}

var finalSynthesisTmpl = template.Must(template.New("final").Parse(`Create the final, comprehensive research report.

Main topic: {{.Topic}}
Total iterations: {{.Iterations}}
Total sources consulted: {{.SourceCount}}

All accumulated findings:
{{.Findings}}

Final themes:
{{.Themes}}

Resolved and unresolved contradictions:
{{.Contradictions}}

Remaining gaps:
{{.Gaps}}

Create a thorough final synthesis:
{
  "summary": "Comprehensive executive summary (3-5 paragraphs)",
  "keyFindings": [
    {
      "title": "Finding title",
      "description": "Detailed description",
      "importance": "high" | "medium" | "low",
      "sources": ["url1", "url2"],
      "confidence": 0.0-1.0
    }
  ],
  "sections": [
    {
      "title": "Section title",
      "content": "Comprehensive markdown-formatted content",
      "sources": ["url1", "url2"]
    }
  ],
  "methodology": "Description of research methodology",
  "limitations": ["Limitation 1", "Limitation 2"],
  "conclusions": "Final conclusions and takeaways",
  "recommendations": ["Recommendation 1", "Recommendation 2"],
  "furtherResearch": ["Suggested research direction 1", "Direction 2"],
  "confidence": 0.0-1.0
}

This is the final deliverable. Make it comprehensive, well-organized, and actionable.

Respond with ONLY the JSON, no additional text.`))

type finalSynthesisData struct {
	Topic          string
	Iterations     int
	SourceCount    int
	Findings       string
	Themes         string
	Contradictions string
	Gaps           string
}

// render executes a prompt template. The templates only reference fields of
// their fixed data structs, so execution cannot fail.
func render(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		panic(err)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
