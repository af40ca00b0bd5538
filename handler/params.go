package handler

// Typed params for each method, matching the protocol schemas.

type HealthCheckParams struct {
	Detailed bool `json:"detailed"`
}

type ScanMarketParams struct {
	MarketType string         `json:"market_type"`
	Criteria   map[string]any `json:"criteria,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

type ExecuteOrderParams struct {
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	Quantity  float64 `json:"quantity"`
	OrderType string  `json:"order_type,omitempty"`
}

type EvaluateRiskParams struct {
	Portfolio     map[string]any `json:"portfolio"`
	ProposedTrade map[string]any `json:"proposed_trade"`
}

type AnalyzeStockParams struct {
	Symbol     string   `json:"symbol"`
	Indicators []string `json:"indicators,omitempty"`
}

type GetMarketDataParams struct {
	Symbols []string `json:"symbols"`
	Fields  []string `json:"fields,omitempty"`
}
