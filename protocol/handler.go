package protocol

import (
	"fmt"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/id"
)

// MessageHandler parses, validates and serializes frames with one codec.
type MessageHandler struct {
	codec Codec
}

// NewMessageHandler returns a MessageHandler using codec. A nil codec
// selects JSON.
func NewMessageHandler(codec Codec) *MessageHandler {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &MessageHandler{codec: codec}
}

// Codec returns the handler's codec.
func (h *MessageHandler) Codec() Codec { return h.codec }

// ParseRequest decodes a request frame. A missing request_id or timestamp
// is generated. Errors are *compute.ValidationError.
func (h *MessageHandler) ParseRequest(data []byte) (*ServiceRequest, error) {
	var raw map[string]any
	if err := h.codec.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, compute.NewValidationError("invalid encoding")
	}

	mv, ok := raw["method"]
	if !ok || mv == nil {
		return nil, compute.NewValidationError("missing method")
	}
	ms, ok := mv.(string)
	if !ok {
		return nil, compute.NewValidationError("unsupported method: %v", mv)
	}
	if ms == "" {
		return nil, compute.NewValidationError("missing method")
	}
	method := Method(ms)
	if !method.Valid() {
		return nil, compute.NewValidationError("unsupported method: %s", ms)
	}

	req := &ServiceRequest{Method: method, Params: Params{}}

	if pv, ok := raw["params"]; ok && pv != nil {
		pm, ok := normalize(pv).(map[string]any)
		if !ok {
			return nil, compute.NewValidationError("invalid params")
		}
		req.Params = pm
	}

	switch rv := raw["request_id"].(type) {
	case nil:
		req.RequestID = id.NewRequestID().String()
	case string:
		if rv == "" {
			rv = id.NewRequestID().String()
		}
		req.RequestID = rv
	default:
		return nil, compute.NewValidationError("invalid request_id")
	}

	if tv, ok := raw["timestamp"]; ok && tv != nil {
		ts, ok := toFloat(tv)
		if !ok {
			return nil, compute.NewValidationError("invalid timestamp")
		}
		req.Timestamp = ts
	} else {
		req.Timestamp = Now()
	}

	return req, nil
}

// SerializeRequest encodes a request frame.
func (h *MessageHandler) SerializeRequest(req *ServiceRequest) ([]byte, error) {
	return h.codec.Marshal(req)
}

// SerializeResponse encodes a response frame.
func (h *MessageHandler) SerializeResponse(resp *ServiceResponse) ([]byte, error) {
	b, err := h.codec.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("protocol: serialize response: %w", err)
	}
	return b, nil
}

// ParseResponse decodes a response frame.
func (h *MessageHandler) ParseResponse(data []byte) (*ServiceResponse, error) {
	var resp ServiceResponse
	if err := h.codec.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("protocol: parse response: %w", err)
	}
	if resp.Data != nil {
		resp.Data, _ = normalize(resp.Data).(map[string]any)
	}
	return &resp, nil
}

// PeekRequestID extracts the request_id from a request frame without
// validating anything else. It returns "" when none can be found.
func (h *MessageHandler) PeekRequestID(data []byte) string {
	var peek struct {
		RequestID any `json:"request_id" msgpack:"request_id"`
	}
	if err := h.codec.Unmarshal(data, &peek); err != nil {
		return ""
	}
	s, _ := peek.RequestID.(string)
	return s
}

// CreateResponse builds a response for requestID. An error status with a
// success-style call is normalized so that Data and Error stay exclusive.
func CreateResponse(requestID string, data map[string]any, status Status) *ServiceResponse {
	resp := &ServiceResponse{
		RequestID: requestID,
		Status:    status,
		Timestamp: Now(),
	}
	if status == StatusSuccess {
		if data == nil {
			data = map[string]any{}
		}
		resp.Data = data
	} else {
		msg := "unknown error"
		if m, ok := data["error"].(string); ok {
			msg = m
		}
		resp.Error = &msg
	}
	return resp
}

// CreateErrorResponse builds an error response carrying message.
func CreateErrorResponse(requestID, message string) *ServiceResponse {
	return &ServiceResponse{
		RequestID: requestID,
		Status:    StatusError,
		Error:     &message,
		Timestamp: Now(),
	}
}

// normalize converts map[any]any produced by some decoders into
// map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

var defaultHandler = NewMessageHandler(JSONCodec{})

// ParseRequest decodes a JSON request frame.
func ParseRequest(data []byte) (*ServiceRequest, error) { return defaultHandler.ParseRequest(data) }

// SerializeResponse encodes a response frame as JSON.
func SerializeResponse(resp *ServiceResponse) ([]byte, error) {
	return defaultHandler.SerializeResponse(resp)
}

// ParseResponse decodes a JSON response frame.
func ParseResponse(data []byte) (*ServiceResponse, error) { return defaultHandler.ParseResponse(data) }
