package sqlite

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/xraph/grove"

	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

// ── Request log model ─────────────────────────────────────────────

type requestLogModel struct {
	grove.BaseModel `grove:"table:request_logs"`

	RequestID        string  `grove:"request_id,pk"`
	Method           string  `grove:"method,notnull"`
	ClientID         string  `grove:"client_id,notnull,default:''"`
	WorkerID         string  `grove:"worker_id,notnull,default:''"`
	RequestData      *string `grove:"request_data"`
	ResponseData     *string `grove:"response_data"`
	ProcessingTimeMs float64 `grove:"processing_time_ms,notnull,default:0"`
	Status           string  `grove:"status,notnull,default:'pending'"`
	CreatedAt        int64   `grove:"created_at,notnull"`
	UpdatedAt        int64   `grove:"updated_at,notnull"`
}

func fromRequestLogModel(m *requestLogModel) (*requestlog.Entry, error) {
	reqData, err := fromJSON(m.RequestData)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: decode request_data of %q: %w", m.RequestID, err)
	}
	respData, err := fromJSON(m.ResponseData)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: decode response_data of %q: %w", m.RequestID, err)
	}
	return &requestlog.Entry{
		RequestID:        m.RequestID,
		Method:           m.Method,
		ClientID:         m.ClientID,
		WorkerID:         m.WorkerID,
		RequestData:      reqData,
		ResponseData:     respData,
		ProcessingTimeMs: m.ProcessingTimeMs,
		Status:           requestlog.Status(m.Status),
		CreatedAt:        fromNanos(m.CreatedAt),
		UpdatedAt:        fromNanos(m.UpdatedAt),
	}, nil
}

// ── Worker status model ───────────────────────────────────────────

type workerStatusModel struct {
	grove.BaseModel `grove:"table:worker_status"`

	WorkerID          string  `grove:"worker_id,pk"`
	Status            string  `grove:"status,notnull"`
	ProcessedRequests int64   `grove:"processed_requests,notnull,default:0"`
	CPUUsage          float64 `grove:"cpu_usage,notnull,default:0"`
	MemoryUsage       float64 `grove:"memory_usage,notnull,default:0"`
	UpdatedAt         int64   `grove:"updated_at,notnull"`
}

func toWorkerStatusModel(ws *cluster.WorkerStatus) *workerStatusModel {
	return &workerStatusModel{
		WorkerID:          ws.WorkerID,
		Status:            string(ws.Status),
		ProcessedRequests: ws.ProcessedRequests,
		CPUUsage:          ws.CPUUsage,
		MemoryUsage:       ws.MemoryUsage,
		UpdatedAt:         toNanos(ws.UpdatedAt),
	}
}

func fromWorkerStatusModel(m *workerStatusModel) *cluster.WorkerStatus {
	return &cluster.WorkerStatus{
		WorkerID:          m.WorkerID,
		Status:            cluster.State(m.Status),
		ProcessedRequests: m.ProcessedRequests,
		CPUUsage:          m.CPUUsage,
		MemoryUsage:       m.MemoryUsage,
		UpdatedAt:         fromNanos(m.UpdatedAt),
	}
}

// ── Metric model ──────────────────────────────────────────────────

type metricModel struct {
	grove.BaseModel `grove:"table:service_metrics"`

	Name      string  `grove:"metric_name,notnull"`
	Value     float64 `grove:"metric_value,notnull"`
	Data      *string `grove:"metric_data"`
	CreatedAt int64   `grove:"created_at,notnull"`
}

func toMetricModel(m *metrics.Metric) (*metricModel, error) {
	data, err := toJSON(m.Data)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: encode metric_data: %w", err)
	}
	return &metricModel{
		Name:      m.Name,
		Value:     m.Value,
		Data:      data,
		CreatedAt: toNanos(m.CreatedAt),
	}, nil
}

func fromMetricModel(m *metricModel) (*metrics.Metric, error) {
	data, err := fromJSON(m.Data)
	if err != nil {
		return nil, fmt.Errorf("compute/sqlite: decode metric_data: %w", err)
	}
	return &metrics.Metric{
		Name:      m.Name,
		Value:     m.Value,
		Data:      data,
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ── Aggregate rows ────────────────────────────────────────────────

type serviceStatsRow struct {
	Total      int64   `grove:"total"`
	Successful int64   `grove:"successful"`
	Failed     int64   `grove:"failed"`
	AvgMs      float64 `grove:"avg_ms"`
}

type methodStatsRow struct {
	Method      string  `grove:"method"`
	CallCount   int64   `grove:"call_count"`
	AvgMs       float64 `grove:"avg_ms"`
	SuccessRate float64 `grove:"success_rate"`
}

// ── Conversions ───────────────────────────────────────────────────

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixNano()
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toJSON(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	s, err := sonic.ConfigStd.MarshalToString(m)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func fromJSON(s *string) (map[string]any, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(*s, &m); err != nil {
		return nil, err
	}
	return m, nil
}
