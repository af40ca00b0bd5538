package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

type requestLogModel struct {
	RequestID        string         `bson:"_id"`
	Method           string         `bson:"method"`
	ClientID         string         `bson:"client_id"`
	WorkerID         string         `bson:"worker_id"`
	RequestData      map[string]any `bson:"request_data"`
	ResponseData     map[string]any `bson:"response_data"`
	ProcessingTimeMs float64        `bson:"processing_time_ms"`
	Status           string         `bson:"status"`
	CreatedAt        time.Time      `bson:"created_at"`
	UpdatedAt        time.Time      `bson:"updated_at"`
}

func fromRequestLogModel(m *requestLogModel) *requestlog.Entry {
	return &requestlog.Entry{
		RequestID:        m.RequestID,
		Method:           m.Method,
		ClientID:         m.ClientID,
		WorkerID:         m.WorkerID,
		RequestData:      plainMap(m.RequestData),
		ResponseData:     plainMap(m.ResponseData),
		ProcessingTimeMs: m.ProcessingTimeMs,
		Status:           requestlog.Status(m.Status),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

type workerModel struct {
	WorkerID          string    `bson:"_id"`
	Status            string    `bson:"status"`
	ProcessedRequests int64     `bson:"processed_requests"`
	CPUUsage          float64   `bson:"cpu_usage"`
	MemoryUsage       float64   `bson:"memory_usage"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func fromWorkerModel(m *workerModel) *cluster.WorkerStatus {
	return &cluster.WorkerStatus{
		WorkerID:          m.WorkerID,
		Status:            cluster.State(m.Status),
		ProcessedRequests: m.ProcessedRequests,
		CPUUsage:          m.CPUUsage,
		MemoryUsage:       m.MemoryUsage,
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type metricModel struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	Name      string         `bson:"metric_name"`
	Value     float64        `bson:"metric_value"`
	Data      map[string]any `bson:"metric_data,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

func toMetricModel(m *metrics.Metric) *metricModel {
	return &metricModel{
		Name:      m.Name,
		Value:     m.Value,
		Data:      m.Data,
		CreatedAt: orNow(m.CreatedAt),
	}
}

func fromMetricModel(m *metricModel) *metrics.Metric {
	return &metrics.Metric{
		Name:      m.Name,
		Value:     m.Value,
		Data:      plainMap(m.Data),
		CreatedAt: m.CreatedAt.UTC(),
	}
}
