package protocol_test

import (
	"testing"

	"github.com/zhengren252/ntn-sub004/protocol"
)

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		method protocol.Method
		good   []protocol.Params
		bad    []protocol.Params
	}{
		{
			method: protocol.MethodHealthCheck,
			good:   []protocol.Params{{}, {"detailed": true}},
			bad:    []protocol.Params{{"detailed": "yes"}},
		},
		{
			method: protocol.MethodScanMarket,
			good: []protocol.Params{
				{"market_type": "equity"},
				{"market_type": "crypto", "criteria": map[string]any{"min_volume": 1000.0}, "limit": 10.0},
			},
			bad: []protocol.Params{
				{},
				{"market_type": ""},
				{"market_type": "equity", "limit": 2.5},
				{"market_type": "equity", "criteria": "all"},
			},
		},
		{
			method: protocol.MethodExecuteOrder,
			good: []protocol.Params{
				{"symbol": "AAPL", "action": "buy", "quantity": 100.0},
				{"symbol": "AAPL", "action": "sell", "quantity": 1, "order_type": "limit"},
			},
			bad: []protocol.Params{
				{"symbol": "AAPL", "action": "hold", "quantity": 100.0},
				{"symbol": "AAPL", "action": "buy"},
				{"symbol": "AAPL", "action": "buy", "quantity": -1.0},
				{"symbol": "AAPL", "action": "buy", "quantity": "100"},
			},
		},
		{
			method: protocol.MethodEvaluateRisk,
			good:   []protocol.Params{{"portfolio": map[string]any{}, "proposed_trade": map[string]any{"symbol": "MSFT"}}},
			bad: []protocol.Params{
				{"portfolio": map[string]any{}},
				{"portfolio": []any{}, "proposed_trade": map[string]any{}},
			},
		},
		{
			method: protocol.MethodAnalyzeStock,
			good: []protocol.Params{
				{"symbol": "TSLA"},
				{"symbol": "TSLA", "indicators": []any{"rsi", "macd"}},
			},
			bad: []protocol.Params{
				{},
				{"symbol": "TSLA", "indicators": []any{"rsi", 3.0}},
			},
		},
		{
			method: protocol.MethodGetMarketData,
			good: []protocol.Params{
				{"symbols": []any{"AAPL"}},
				{"symbols": []string{"AAPL", "MSFT"}, "fields": []any{"price"}},
			},
			bad: []protocol.Params{
				{},
				{"symbols": []any{}},
				{"symbols": "AAPL"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			for _, p := range tt.good {
				if err := protocol.Validate(tt.method, p); err != nil {
					t.Errorf("Validate(%v) = %v, want nil", p, err)
				}
			}
			for _, p := range tt.bad {
				if protocol.ValidateParameters(tt.method, p) {
					t.Errorf("ValidateParameters(%v) = true, want false", p)
				}
			}
		})
	}
}

func TestEveryMethodHasSchema(t *testing.T) {
	for _, m := range protocol.Methods() {
		if _, ok := protocol.SchemaFor(m); !ok {
			t.Errorf("no schema for %s", m)
		}
	}
	if protocol.Method("nope").Valid() {
		t.Error("unknown method reported valid")
	}
}
