package protocol

import (
	"fmt"
	"math"
	"strings"

	compute "github.com/zhengren252/ntn-sub004"
)

// Kind is the primitive type expected for a parameter.
type Kind int

// Parameter kinds.
const (
	KindString Kind = iota + 1
	KindBool
	KindInteger
	KindNumber
	KindObject
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindObject:
		return "object"
	case KindStringList:
		return "list of strings"
	default:
		return "unknown"
	}
}

// Field describes one named parameter.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum restricts string values when non-empty.
	Enum []string
	// NonEmpty requires a list to have at least one element.
	NonEmpty bool
	// Positive requires a number to be > 0.
	Positive bool
}

// Schema is the parameter contract of one method.
type Schema struct {
	Method Method
	Fields []Field
}

var schemas = map[Method]Schema{
	MethodHealthCheck: {Method: MethodHealthCheck, Fields: []Field{
		{Name: "detailed", Kind: KindBool},
	}},
	MethodScanMarket: {Method: MethodScanMarket, Fields: []Field{
		{Name: "market_type", Kind: KindString, Required: true},
		{Name: "criteria", Kind: KindObject},
		{Name: "limit", Kind: KindInteger, Positive: true},
	}},
	MethodExecuteOrder: {Method: MethodExecuteOrder, Fields: []Field{
		{Name: "symbol", Kind: KindString, Required: true},
		{Name: "action", Kind: KindString, Required: true, Enum: []string{"buy", "sell"}},
		{Name: "quantity", Kind: KindNumber, Required: true, Positive: true},
		{Name: "order_type", Kind: KindString},
	}},
	MethodEvaluateRisk: {Method: MethodEvaluateRisk, Fields: []Field{
		{Name: "portfolio", Kind: KindObject, Required: true},
		{Name: "proposed_trade", Kind: KindObject, Required: true},
	}},
	MethodAnalyzeStock: {Method: MethodAnalyzeStock, Fields: []Field{
		{Name: "symbol", Kind: KindString, Required: true},
		{Name: "indicators", Kind: KindStringList},
	}},
	MethodGetMarketData: {Method: MethodGetMarketData, Fields: []Field{
		{Name: "symbols", Kind: KindStringList, Required: true, NonEmpty: true},
		{Name: "fields", Kind: KindStringList},
	}},
}

// SchemaFor returns the schema registered for m.
func SchemaFor(m Method) (Schema, bool) {
	s, ok := schemas[m]
	return s, ok
}

// Validate checks params against the schema of method. Unknown keys are
// allowed. The returned error is a *compute.ValidationError.
func Validate(method Method, params Params) error {
	s, ok := schemas[method]
	if !ok {
		return compute.NewValidationError("unsupported method: %s", method)
	}
	for _, f := range s.Fields {
		v, present := params[f.Name]
		if !present || v == nil {
			if f.Required {
				return compute.NewValidationError("invalid params for %s: missing required field %q", method, f.Name)
			}
			continue
		}
		if err := f.check(v); err != nil {
			return compute.NewValidationError("invalid params for %s: field %q %v", method, f.Name, err)
		}
	}
	return nil
}

// ValidateParameters is the boolean form of Validate.
func ValidateParameters(method Method, params Params) bool {
	return Validate(method, params) == nil
}

func (f Field) check(v any) error {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("must not be empty")
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return fmt.Errorf("must be one of [%s], got %q", strings.Join(f.Enum, " "), s)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("must be a bool")
		}
	case KindInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("must be an integer")
		}
		if f.Positive && n <= 0 {
			return fmt.Errorf("must be positive")
		}
	case KindNumber:
		n, ok := toFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("must be a number")
		}
		if f.Positive && n <= 0 {
			return fmt.Errorf("must be positive")
		}
	case KindObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("must be an object")
		}
	case KindStringList:
		list, ok := toStringList(v)
		if !ok {
			return fmt.Errorf("must be a list of strings")
		}
		if f.NonEmpty && len(list) == 0 {
			return fmt.Errorf("must not be empty")
		}
	}
	return nil
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
