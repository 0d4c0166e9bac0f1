package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// AlphaVantageURL is the default quote endpoint.
const AlphaVantageURL = "https://www.alphavantage.co/query"

// StockInput is the argument object for get_stock_price.
type StockInput struct {
	Symbol string `json:"symbol" jsonschema_description:"The ticker symbol, e.g. AAPL"`
}

// NewStockPrice builds the stock quote tool backed by Alpha Vantage.
func NewStockPrice(cfg WebToolsConfig) (Tool, error) {
	cfg.applyDefaults()
	return New("get_stock_price",
		"Get the latest price and daily change for a stock ticker symbol.",
		func(ctx context.Context, in StockInput) (string, error) {
			if cfg.AlphaVantageAPIKey == "" {
				return "get_stock_price is unavailable: no API key is configured.", nil
			}

			symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
			if symbol == "" {
				return "", fmt.Errorf("%w: symbol must not be empty", ErrInvalidArguments)
			}

			q := url.Values{}
			q.Set("function", "GLOBAL_QUOTE")
			q.Set("symbol", symbol)
			q.Set("apikey", cfg.AlphaVantageAPIKey)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.AlphaVantageURL+"?"+q.Encode(), nil)
			if err != nil {
				return "", fmt.Errorf("building request: %w", err)
			}

			var body struct {
				Quote struct {
					Price         string `json:"05. price"`
					ChangePercent string `json:"10. change percent"`
				} `json:"Global Quote"`
			}
			if err := doJSON(cfg.HTTPClient, req, &body); err != nil {
				return "", err
			}

			if body.Quote.Price == "" {
				return fmt.Sprintf("[get_stock_price] no quote available for %s.", symbol), nil
			}
			return fmt.Sprintf("[get_stock_price] %s: price %s, change %s",
				symbol, body.Quote.Price, body.Quote.ChangePercent), nil
		})
}
