package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/metrics"
	"github.com/zhengren252/ntn-sub004/requestlog"
	"github.com/zhengren252/ntn-sub004/store"
)

// Store is the persistence the jobs need.
type Store interface {
	ServiceStats(ctx context.Context) (*requestlog.ServiceStats, error)
	RecordMetric(ctx context.Context, m *metrics.Metric) error
	CleanupOldData(ctx context.Context, retention time.Duration) (store.CleanupResult, error)
}

// Config selects the schedules and the retention window.
type Config struct {
	Retention        time.Duration
	CleanupSchedule  string
	SnapshotSchedule string
}

// ConfigFrom derives the maintenance settings from the service
// configuration.
func ConfigFrom(c compute.Config) Config {
	return Config{
		Retention:        c.Retention(),
		CleanupSchedule:  c.Maintenance.CleanupSchedule,
		SnapshotSchedule: c.Maintenance.SnapshotSchedule,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock sets the time source used to evaluate schedules.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRunTimeout bounds a single job run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.runTimeout = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type job struct {
	name     string
	expr     string
	schedule cronlib.Schedule
	run      func(ctx context.Context) error
	next     time.Time
}

// Scheduler fires the maintenance jobs on a tick loop.
type Scheduler struct {
	store      Store
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	jobs       []*job
	runTimeout time.Duration

	tickInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. It fails if a schedule does not parse.
func NewScheduler(st Store, cfg Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        st,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		runTimeout:   5 * time.Minute,
		tickInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.CleanupSchedule != "" && cfg.Retention > 0 {
		if err := s.add("cleanup", cfg.CleanupSchedule, func(ctx context.Context) error {
			_, err := s.Cleanup(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}
	if cfg.SnapshotSchedule != "" {
		if err := s.add("snapshot", cfg.SnapshotSchedule, s.Snapshot); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, expr string, run func(ctx context.Context) error) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("compute/maintenance: parse %s schedule %q: %w", name, expr, err)
	}
	s.jobs = append(s.jobs, &job{name: name, expr: expr, schedule: sched, run: run})
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.name
	}
	return names
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	now := s.now()
	for _, j := range s.jobs {
		j.next = j.schedule.Next(now)
	}

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("maintenance scheduler started",
		slog.Int("jobs", len(s.jobs)),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for a running job.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := s.now()
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		j.next = j.schedule.Next(now)
		s.fire(j)
	}
}

func (s *Scheduler) fire(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	start := time.Now()
	if err := j.run(ctx); err != nil {
		s.logger.Error("maintenance job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("maintenance job done",
		slog.String("job", j.name),
		slog.Duration("elapsed", time.Since(start)),
		slog.Time("next", j.next),
	)
}
