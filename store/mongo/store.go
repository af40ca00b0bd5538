package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/zhengren252/ntn-sub004/store"
)

// Collection name constants.
const (
	colRequestLogs = "request_logs"
	colWorkers     = "worker_status"
	colMetrics     = "service_metrics"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	db     *mongod.Database
	client *mongod.Client // set only when the store owns the connection
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to uri and uses the named database. Close disconnects.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("compute/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("compute/mongo: ping: %w", err)
	}
	s := New(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// New creates a store over db. The caller owns the client lifecycle.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("compute/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the store opened it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CleanupOldData deletes request logs and metrics older than retention.
func (s *Store) CleanupOldData(ctx context.Context, retention time.Duration) (store.CleanupResult, error) {
	cutoff := now().Add(-retention)
	filter := bson.M{"created_at": bson.M{"$lt": cutoff}}
	var res store.CleanupResult

	dr, err := s.db.Collection(colRequestLogs).DeleteMany(ctx, filter)
	if err != nil {
		return res, fmt.Errorf("compute/mongo: cleanup request logs: %w", err)
	}
	res.RequestLogs = dr.DeletedCount

	dr, err = s.db.Collection(colMetrics).DeleteMany(ctx, filter)
	if err != nil {
		return res, fmt.Errorf("compute/mongo: cleanup metrics: %w", err)
	}
	res.Metrics = dr.DeletedCount
	return res, nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time truncated to BSON precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t.UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// plain converts decoded BSON containers into plain Go maps and slices so
// callers see the same shapes the SQL stores return.
func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func plainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := plain(m).(map[string]any)
	return out
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRequestLogs: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "method", Value: 1}}},
		},
		colWorkers: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colMetrics: {
			{Keys: bson.D{
				{Key: "metric_name", Value: 1},
				{Key: "created_at", Value: -1},
			}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}
