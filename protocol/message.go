// Package protocol implements the compute wire protocol: the method
// whitelist with its parameter schemas, the request and response frames,
// and the codecs that move them over the transport.
package protocol

import (
	"time"
)

// Status is the outcome carried by a response.
type Status string

// Response statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Ready is the control frame a worker sends to declare it can accept the
// next request. It is an empty payload.
var Ready = []byte{}

// IsReady reports whether payload is the READY control frame.
func IsReady(payload []byte) bool { return len(payload) == 0 }

// Params is the method-specific payload of a request.
type Params map[string]any

// String returns params[key] as a string.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Float returns params[key] as a float64 for any numeric kind.
func (p Params) Float(key string) (float64, bool) {
	return toFloat(p[key])
}

// Bool returns params[key] as a bool.
func (p Params) Bool(key string) (bool, bool) {
	b, ok := p[key].(bool)
	return b, ok
}

// Strings returns params[key] as a list of strings.
func (p Params) Strings(key string) ([]string, bool) {
	return toStringList(p[key])
}

// Object returns params[key] as a nested object.
func (p Params) Object(key string) (map[string]any, bool) {
	m, ok := p[key].(map[string]any)
	return m, ok
}

// ServiceRequest is one call into the compute backend. Exactly one
// ServiceResponse with the same RequestID is produced for it.
type ServiceRequest struct {
	Method    Method  `json:"method" msgpack:"method"`
	Params    Params  `json:"params" msgpack:"params"`
	RequestID string  `json:"request_id" msgpack:"request_id"`
	Timestamp float64 `json:"timestamp" msgpack:"timestamp"`
}

// ServiceResponse is the result of one ServiceRequest. Data is set iff
// Status is success; Error is set iff Status is error.
type ServiceResponse struct {
	RequestID        string         `json:"request_id" msgpack:"request_id"`
	Status           Status         `json:"status" msgpack:"status"`
	Data             map[string]any `json:"data" msgpack:"data"`
	Error            *string        `json:"error" msgpack:"error"`
	Timestamp        float64        `json:"timestamp" msgpack:"timestamp"`
	ProcessingTimeMs float64        `json:"processing_time_ms" msgpack:"processing_time_ms"`
}

// OK reports whether the response carries a success status.
func (r *ServiceResponse) OK() bool { return r.Status == StatusSuccess }

// ErrorMessage returns the error text, or "".
func (r *ServiceResponse) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Now returns the current time as float unix seconds.
func Now() float64 { return ToTimestamp(time.Now()) }

// ToTimestamp converts t to float unix seconds.
func ToTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromTimestamp converts float unix seconds back to a time.Time.
func FromTimestamp(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
