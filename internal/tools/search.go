package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Default upstream endpoints; overridable for tests.
const (
	SerperURL  = "https://google.serper.dev/search"
	NewsAPIURL = "https://newsapi.org/v2/everything"
	TavilyURL  = "https://api.tavily.com/search"
)

// maxSearchResults caps how many hits are folded into a result payload.
const maxSearchResults = 5

// maxResponseSize limits API response bodies (1MB).
const maxResponseSize = 1 << 20

// SearchInput is the argument object shared by the search tools.
type SearchInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
}

// searchHit is one structured search result.
type searchHit struct {
	Title   string
	URL     string
	Snippet string
}

// WebToolsConfig carries credentials and HTTP plumbing for the tools that
// talk to external APIs. A missing key degrades the tool to an explanatory
// payload instead of an error.
type WebToolsConfig struct {
	SerperAPIKey       string
	NewsAPIKey         string
	TavilyAPIKey       string
	AlphaVantageAPIKey string

	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client

	// Endpoint overrides for tests.
	SerperURL       string
	NewsAPIURL      string
	TavilyURL       string
	AlphaVantageURL string

	Logger *slog.Logger
}

func (c *WebToolsConfig) applyDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.SerperURL == "" {
		c.SerperURL = SerperURL
	}
	if c.NewsAPIURL == "" {
		c.NewsAPIURL = NewsAPIURL
	}
	if c.TavilyURL == "" {
		c.TavilyURL = TavilyURL
	}
	if c.AlphaVantageURL == "" {
		c.AlphaVantageURL = AlphaVantageURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RegisterWebTools builds and registers web_search, news_search,
// tavily_search, and get_stock_price.
func RegisterWebTools(registry *Registry, cfg WebToolsConfig) error {
	cfg.applyDefaults()

	constructors := []func(WebToolsConfig) (Tool, error){
		NewWebSearch,
		NewNewsSearch,
		NewTavilySearch,
		NewStockPrice,
	}
	for _, build := range constructors {
		tool, err := build(cfg)
		if err != nil {
			return err
		}
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// NewWebSearch builds the general-purpose web search tool backed by Serper.
func NewWebSearch(cfg WebToolsConfig) (Tool, error) {
	cfg.applyDefaults()
	return New("web_search",
		"General-purpose web search. Returns titles, URLs, and snippets for the most relevant pages.",
		func(ctx context.Context, in SearchInput) (string, error) {
			if cfg.SerperAPIKey == "" {
				return "web_search is unavailable: no API key is configured.", nil
			}

			payload, _ := json.Marshal(map[string]any{"q": in.Query, "num": maxSearchResults})
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.SerperURL, bytes.NewReader(payload))
			if err != nil {
				return "", fmt.Errorf("building request: %w", err)
			}
			req.Header.Set("X-API-KEY", cfg.SerperAPIKey)
			req.Header.Set("Content-Type", "application/json")

			var body struct {
				Organic []struct {
					Title   string `json:"title"`
					Link    string `json:"link"`
					Snippet string `json:"snippet"`
				} `json:"organic"`
			}
			if err := doJSON(cfg.HTTPClient, req, &body); err != nil {
				return "", err
			}

			hits := make([]searchHit, 0, len(body.Organic))
			for _, o := range body.Organic {
				hits = append(hits, searchHit{Title: o.Title, URL: o.Link, Snippet: o.Snippet})
			}
			return formatHits("web_search", in.Query, hits), nil
		})
}

// NewNewsSearch builds the recency-focused news search tool backed by NewsAPI.
func NewNewsSearch(cfg WebToolsConfig) (Tool, error) {
	cfg.applyDefaults()
	return New("news_search",
		"Search recent news articles, newest first. Use for current events and time-sensitive questions.",
		func(ctx context.Context, in SearchInput) (string, error) {
			if cfg.NewsAPIKey == "" {
				return "news_search is unavailable: no API key is configured.", nil
			}

			q := url.Values{}
			q.Set("q", in.Query)
			q.Set("sortBy", "publishedAt")
			q.Set("pageSize", fmt.Sprint(maxSearchResults))
			q.Set("apiKey", cfg.NewsAPIKey)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.NewsAPIURL+"?"+q.Encode(), nil)
			if err != nil {
				return "", fmt.Errorf("building request: %w", err)
			}

			var body struct {
				Articles []struct {
					Title       string `json:"title"`
					URL         string `json:"url"`
					Description string `json:"description"`
				} `json:"articles"`
			}
			if err := doJSON(cfg.HTTPClient, req, &body); err != nil {
				return "", err
			}

			hits := make([]searchHit, 0, len(body.Articles))
			for _, a := range body.Articles {
				hits = append(hits, searchHit{Title: a.Title, URL: a.URL, Snippet: a.Description})
			}
			return formatHits("news_search", in.Query, hits), nil
		})
}

// NewTavilySearch builds the research search tool backed by Tavily.
func NewTavilySearch(cfg WebToolsConfig) (Tool, error) {
	cfg.applyDefaults()
	return New("tavily_search",
		"Semantic research search. Best for in-depth questions needing synthesized source content.",
		func(ctx context.Context, in SearchInput) (string, error) {
			if cfg.TavilyAPIKey == "" {
				return "tavily_search is unavailable: no API key is configured.", nil
			}

			payload, _ := json.Marshal(map[string]any{
				"api_key": cfg.TavilyAPIKey,
				"query":   in.Query,
			})
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TavilyURL, bytes.NewReader(payload))
			if err != nil {
				return "", fmt.Errorf("building request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			var body struct {
				Results []struct {
					Title   string `json:"title"`
					URL     string `json:"url"`
					Content string `json:"content"`
				} `json:"results"`
			}
			if err := doJSON(cfg.HTTPClient, req, &body); err != nil {
				return "", err
			}

			hits := make([]searchHit, 0, len(body.Results))
			for _, r := range body.Results {
				hits = append(hits, searchHit{Title: r.Title, URL: r.URL, Snippet: r.Content})
			}
			return formatHits("tavily_search", in.Query, hits), nil
		})
}

// doJSON executes req, enforces the response size limit, and decodes the
// JSON body into out. Non-2xx statuses are returned as errors so dispatch
// can retry transient upstream failures.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// formatHits folds structured hits into the text payload sent to the model.
func formatHits(toolName, query string, hits []searchHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	if len(hits) > maxSearchResults {
		hits = hits[:maxSearchResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] results for %q:\n", toolName, query)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", h.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
