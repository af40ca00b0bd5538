package protocol

// Method names one supported operation. The set is closed: every value
// has a Schema and nothing outside Methods() is ever dispatched.
type Method string

// Supported methods.
const (
	MethodHealthCheck   Method = "health.check"
	MethodScanMarket    Method = "scan.market"
	MethodExecuteOrder  Method = "execute.order"
	MethodEvaluateRisk  Method = "evaluate.risk"
	MethodAnalyzeStock  Method = "analyze.stock"
	MethodGetMarketData Method = "get.market_data"
)

var methods = []Method{
	MethodHealthCheck,
	MethodScanMarket,
	MethodExecuteOrder,
	MethodEvaluateRisk,
	MethodAnalyzeStock,
	MethodGetMarketData,
}

// Methods returns the method whitelist in declaration order.
func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

// Valid reports whether m is in the whitelist.
func (m Method) Valid() bool {
	_, ok := schemas[m]
	return ok
}

func (m Method) String() string { return string(m) }
