package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arahq/ara/internal/log"
)

func execTool(t *testing.T, tool Tool, args string) string {
	t.Helper()
	out, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return out
}

func TestWebSearch(t *testing.T) {
	t.Run("formats organic results", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-KEY") != "serper-key" {
				t.Errorf("missing API key header")
			}
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["q"] != "go generics" {
				t.Errorf("query = %v", req["q"])
			}
			_, _ = w.Write([]byte(`{"organic":[
				{"title":"Go Blog","link":"https://go.dev/blog","snippet":"Generics in Go"},
				{"title":"Spec","link":"https://go.dev/ref/spec","snippet":""}
			]}`))
		}))
		defer srv.Close()

		tool, err := NewWebSearch(WebToolsConfig{
			SerperAPIKey: "serper-key",
			SerperURL:    srv.URL,
			Logger:       log.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewWebSearch() error = %v", err)
		}

		out := execTool(t, tool, `{"query":"go generics"}`)
		if !strings.Contains(out, "[web_search]") {
			t.Errorf("output = %q", out)
		}
		if !strings.Contains(out, "Go Blog") || !strings.Contains(out, "https://go.dev/blog") {
			t.Errorf("output missing result fields: %q", out)
		}
		if !strings.Contains(out, "Generics in Go") {
			t.Errorf("output missing snippet: %q", out)
		}
	})

	t.Run("missing key degrades to explanatory payload", func(t *testing.T) {
		tool, err := NewWebSearch(WebToolsConfig{Logger: log.NewNop()})
		if err != nil {
			t.Fatalf("NewWebSearch() error = %v", err)
		}
		out := execTool(t, tool, `{"query":"anything"}`)
		if !strings.Contains(out, "unavailable") {
			t.Errorf("output = %q, want unavailable payload", out)
		}
	})

	t.Run("empty results reported in-band", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"organic":[]}`))
		}))
		defer srv.Close()

		tool, err := NewWebSearch(WebToolsConfig{
			SerperAPIKey: "k", SerperURL: srv.URL, Logger: log.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewWebSearch() error = %v", err)
		}
		out := execTool(t, tool, `{"query":"obscure"}`)
		if !strings.Contains(out, "No results found") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("upstream failure surfaces as error for retry", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		tool, err := NewWebSearch(WebToolsConfig{
			SerperAPIKey: "k", SerperURL: srv.URL, Logger: log.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewWebSearch() error = %v", err)
		}
		_, err = tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
		if err == nil || !strings.Contains(err.Error(), "upstream status 429") {
			t.Errorf("Execute() error = %v, want upstream status error", err)
		}
	})
}

func TestNewsSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sortBy") != "publishedAt" {
			t.Errorf("sortBy = %q", q.Get("sortBy"))
		}
		if q.Get("apiKey") != "news-key" {
			t.Errorf("apiKey = %q", q.Get("apiKey"))
		}
		_, _ = w.Write([]byte(`{"articles":[
			{"title":"Rates hold steady","url":"https://news.example/1","description":"Central bank update"}
		]}`))
	}))
	defer srv.Close()

	tool, err := NewNewsSearch(WebToolsConfig{
		NewsAPIKey: "news-key",
		NewsAPIURL: srv.URL,
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewNewsSearch() error = %v", err)
	}

	out := execTool(t, tool, `{"query":"interest rates"}`)
	if !strings.Contains(out, "Rates hold steady") || !strings.Contains(out, "Central bank update") {
		t.Errorf("output = %q", out)
	}
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["api_key"] != "tavily-key" {
			t.Errorf("api_key = %v", req["api_key"])
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Deep dive","url":"https://research.example","content":"Long form content"}
		]}`))
	}))
	defer srv.Close()

	tool, err := NewTavilySearch(WebToolsConfig{
		TavilyAPIKey: "tavily-key",
		TavilyURL:    srv.URL,
		Logger:       log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewTavilySearch() error = %v", err)
	}

	out := execTool(t, tool, `{"query":"deep question"}`)
	if !strings.Contains(out, "Deep dive") || !strings.Contains(out, "Long form content") {
		t.Errorf("output = %q", out)
	}
}

func TestStockPrice(t *testing.T) {
	t.Run("reports price and change", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("function") != "GLOBAL_QUOTE" || q.Get("symbol") != "AAPL" {
				t.Errorf("query = %v", q)
			}
			_, _ = w.Write([]byte(`{"Global Quote":{"05. price":"123.45","10. change percent":"2.5%"}}`))
		}))
		defer srv.Close()

		tool, err := NewStockPrice(WebToolsConfig{
			AlphaVantageAPIKey: "av-key",
			AlphaVantageURL:    srv.URL,
			Logger:             log.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewStockPrice() error = %v", err)
		}

		out := execTool(t, tool, `{"symbol":"aapl"}`)
		if !strings.Contains(out, "[get_stock_price]") || !strings.Contains(out, "123.45") {
			t.Errorf("output = %q", out)
		}
		if !strings.Contains(out, "2.5%") {
			t.Errorf("output missing change: %q", out)
		}
	})

	t.Run("empty quote reported in-band", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"Global Quote":{}}`))
		}))
		defer srv.Close()

		tool, err := NewStockPrice(WebToolsConfig{
			AlphaVantageAPIKey: "av-key",
			AlphaVantageURL:    srv.URL,
			Logger:             log.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewStockPrice() error = %v", err)
		}
		out := execTool(t, tool, `{"symbol":"ZZZZ"}`)
		if !strings.Contains(out, "no quote available") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestRegisterWebTools(t *testing.T) {
	reg := NewRegistry()
	err := RegisterWebTools(reg, WebToolsConfig{Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("RegisterWebTools() error = %v", err)
	}
	for _, name := range []string{"web_search", "news_search", "tavily_search", "get_stock_price"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
