// Package requestlog defines the durable request/response log: one entry
// per request_id, written when a worker accepts the request and completed
// when it responds.
package requestlog

import "time"

// Status is the lifecycle status of a logged request.
type Status string

const (
	// StatusPending means the request was accepted but has no response yet.
	StatusPending Status = "pending"
	// StatusSuccess means the handler produced data.
	StatusSuccess Status = "success"
	// StatusError means validation or the handler failed.
	StatusError Status = "error"
	// StatusTimeout means the broker gave up on the worker.
	StatusTimeout Status = "timeout"
)

// Entry is one row of request_logs.
type Entry struct {
	RequestID        string         `json:"request_id"`
	Method           string         `json:"method"`
	ClientID         string         `json:"client_id"`
	WorkerID         string         `json:"worker_id"`
	RequestData      map[string]any `json:"request_data,omitempty"`
	ResponseData     map[string]any `json:"response_data,omitempty"`
	ProcessingTimeMs float64        `json:"processing_time_ms"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ServiceStats aggregates every logged request.
type ServiceStats struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
}

// SuccessRate returns successful / total, or 0 with no requests.
func (s *ServiceStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// MethodStats aggregates logged requests for one method.
type MethodStats struct {
	Method       string  `json:"method"`
	CallCount    int64   `json:"call_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
}
