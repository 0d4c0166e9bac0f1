package engine

import "strings"

// systemPrompt steers the model toward tool-grounded answers. Tool names
// here must match the registered tool set.
const systemPrompt = `You are Ara, a research assistant with controlled tool usage.

Rules:
- Never guess dates, weather, prices, news or recent events.
- If the query needs real-time data (current, today, latest, recent, price, market, news), ALWAYS call a web/news tool first.
- For deep research queries, use tavily_search.
- For news queries, use news_search.
- For general factual real-time queries, use web_search.
- For questions about documents attached to this conversation, use rag_search.
- After tool results, summarize clearly.`

// freshnessDirective is appended to the system prompt when the input
// matches a temporal keyword. Advisory: the model can still answer
// directly, the directive only raises the pressure to ground the answer.
const freshnessDirective = `

The user is asking about time-sensitive information. Call a search tool before answering; do not answer from memory.`

// temporalKeywords flag queries whose answers go stale.
var temporalKeywords = []string{
	"current", "today", "news", "latest", "recent",
	"this week", "this month", "price", "market",
}

// needsFreshData reports whether input mentions a temporal keyword.
func needsFreshData(input string) bool {
	lower := strings.ToLower(input)
	for _, kw := range temporalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// buildSystemPrompt assembles the per-turn system prompt.
func buildSystemPrompt(input string) string {
	if needsFreshData(input) {
		return systemPrompt + freshnessDirective
	}
	return systemPrompt
}
