package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
)

// SearxNGOptions configure the SearxNG provider.
type SearxNGOptions struct {
	// UserAgent sent on page fetches.
	UserAgent string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	// Logger for search diagnostics.
	Logger logging.Logger
}

// SearxNG implements Provider against a SearxNG instance's JSON API and a
// plain HTTP page fetcher.
type SearxNG struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    logging.Logger
}

// NewSearxNG constructs a provider for the given SearxNG base URL.
func NewSearxNG(baseURL string, optFns ...func(o *SearxNGOptions)) *SearxNG {
	opts := SearxNGOptions{
		UserAgent: "researchmesh/1.0",
		Timeout:   30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &SearxNG{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: opts.UserAgent,
		client:    client,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

type searxResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Engine  string `json:"engine"`
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

// Search queries the instance's JSON endpoint and returns at most maxResults
// hits in upstream order.
func (s *SearxNG) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")

	endpoint := fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode())

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &core.FetchError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &core.FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.FetchError{URL: endpoint, Err: fmt.Errorf("search returned status %d", resp.StatusCode)}
	}

	var payload searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &core.FetchError{URL: endpoint, Err: err}
	}

	if maxResults <= 0 {
		maxResults = 10
	}
	if len(payload.Results) > maxResults {
		payload.Results = payload.Results[:maxResults]
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Source:  r.Engine,
		})
	}

	if sl, ok := s.logger.(logging.SearchLogger); ok {
		sl.LogSearch(query, len(results), time.Since(start), nil)
	} else {
		s.logger.Debug("search completed", "query", query, "results", len(results), "duration", time.Since(start).String())
	}
	return results, nil
}

// FetchPage retrieves a page and reduces it to plain text.
func (s *SearxNG) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &core.FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &core.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.FetchError{URL: pageURL, Err: fmt.Errorf("fetch returned status %d", resp.StatusCode)}
	}

	// Cap the body; pages beyond this add nothing to the analysis prompt.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &core.FetchError{URL: pageURL, Err: err}
	}

	title, text := parseHTML(string(body))
	return &Page{
		URL:      pageURL,
		Title:    title,
		Content:  text,
		Markdown: text,
	}, nil
}

var (
	titleRe      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropRe       = regexp.MustCompile(`(?is)<(script|style|noscript|head)[^>]*>.*?</\s*(?:script|style|noscript|head)\s*>`)
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// parseHTML strips markup down to title and readable text.
func parseHTML(html string) (title, text string) {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		title = strings.TrimSpace(m[1])
	}

	cleaned := dropRe.ReplaceAllString(html, " ")
	cleaned = tagRe.ReplaceAllString(cleaned, "\n")
	cleaned = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(cleaned)
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	text = blankLinesRe.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return title, text
}
