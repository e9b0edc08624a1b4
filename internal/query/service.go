package query

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sql-fanout/internal/history"
	"sql-fanout/pkg/db"
)

// ReportCache is the optional external cache for completed reports.
// Implemented by pkg/redis.
type ReportCache interface {
	StoreReport(ctx context.Context, jobID string, report any) error
	Report(ctx context.Context, jobID string, dst any) (bool, error)
}

// Service is the engine entry point: it validates submissions, dispatches
// jobs, tracks per-job cancellation, assembles reports, and appends history.
type Service struct {
	dispatcher *Dispatcher
	connector  Connector
	store      history.Store
	cache      ReportCache
	log        *slog.Logger

	seq        atomic.Uint64
	maxReports int

	mu        sync.Mutex
	pending   map[string]*Job
	reports   map[string]*Report
	completed []string // job ids in completion order, oldest first

	cancels sync.Map // job id -> context.CancelFunc
}

type ServiceDeps struct {
	Dispatcher *Dispatcher
	Connector  Connector
	Store      history.Store
	Cache      ReportCache // may be nil
	MaxReports int         // in-memory completed reports to retain; <=0 means 50
	Log        *slog.Logger
}

func NewService(deps ServiceDeps) *Service {
	maxReports := deps.MaxReports
	if maxReports <= 0 {
		maxReports = 50
	}
	s := &Service{
		dispatcher: deps.Dispatcher,
		connector:  deps.Connector,
		store:      deps.Store,
		cache:      deps.Cache,
		maxReports: maxReports,
		log:        deps.Log,
		pending:    make(map[string]*Job),
		reports:    make(map[string]*Report),
	}

	// A persisted store carries sequence numbers from earlier runs; continue
	// from the highest one so new appends never collide with stored entries.
	if last, err := deps.Store.MaxSeq(context.Background()); err != nil {
		s.log.Warn("reading last history sequence", "err", err)
	} else {
		s.seq.Store(last)
	}
	return s
}

// Submit validates the query and selection, builds an immutable job, and
// starts background execution. Validation failures are returned synchronously;
// no worker starts and no history entry is written.
func (s *Service) Submit(queryText string, targets []Target) (*Job, error) {
	if err := ValidateQueryText(queryText); err != nil {
		return nil, err
	}
	if err := ValidateSelection(targets); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		QueryText:   queryText,
		Targets:     targets,
		SubmittedAt: time.Now(),
		seq:         s.seq.Add(1),
	}

	s.mu.Lock()
	s.pending[job.ID] = job
	s.mu.Unlock()

	// Registered before the job goroutine starts so a cancel arriving right
	// after Submit returns cannot miss it.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels.Store(job.ID, cancel)

	go s.run(ctx, cancel, job)

	s.log.Info("job submitted", "jobId", job.ID, "targets", len(targets))
	return job, nil
}

// run is the per-job consumer: it drains the aggregator, assembles the report,
// and appends the history entry.
func (s *Service) run(ctx context.Context, cancel context.CancelFunc, job *Job) {
	defer s.cancels.Delete(job.ID)
	defer cancel()

	startedAt := time.Now()
	agg := NewAggregator(len(job.Targets), s.log)
	s.dispatcher.Dispatch(ctx, job, agg)

	// Workers publish on every exit path, so the drain terminates without a
	// deadline of its own.
	outcomes := agg.Drain(context.Background(), job.Targets)
	report := buildReport(job, outcomes, ctx.Err() != nil, startedAt)

	s.mu.Lock()
	delete(s.pending, job.ID)
	s.reports[job.ID] = report
	s.completed = append(s.completed, job.ID)
	for len(s.completed) > s.maxReports {
		delete(s.reports, s.completed[0])
		s.completed = s.completed[1:]
	}
	s.mu.Unlock()

	if err := s.store.Append(context.Background(), history.Entry{
		JobID:       job.ID,
		QueryText:   job.QueryText,
		TargetCount: len(job.Targets),
		Overall:     string(report.Overall),
		SubmittedAt: job.SubmittedAt,
		Seq:         job.seq,
	}); err != nil {
		s.log.Error("appending history entry", "jobId", job.ID, "err", err)
	}

	if s.cache != nil {
		if err := s.cache.StoreReport(context.Background(), job.ID, report); err != nil {
			s.log.Warn("caching report", "jobId", job.ID, "err", err)
		}
	}

	s.log.Info("job completed", "jobId", job.ID, "status", report.Overall,
		"durationMs", report.CompletedAt.Sub(report.StartedAt).Milliseconds())
}

// Report returns the completed report for a job, pending=true while workers
// are still running, or a NotFoundError for an unknown id. Reports evicted
// from memory are still served from the cache when one is configured.
func (s *Service) Report(ctx context.Context, jobID string) (*Report, bool, error) {
	s.mu.Lock()
	if report, ok := s.reports[jobID]; ok {
		s.mu.Unlock()
		return report, false, nil
	}
	if _, ok := s.pending[jobID]; ok {
		s.mu.Unlock()
		return nil, true, nil
	}
	s.mu.Unlock()

	if s.cache != nil {
		var report Report
		found, err := s.cache.Report(ctx, jobID, &report)
		if err != nil {
			s.log.Warn("reading report cache", "jobId", jobID, "err", err)
		} else if found {
			return &report, false, nil
		}
	}

	return nil, false, ErrNotFound("job %q not found", jobID)
}

// Cancel requests cooperative cancellation of a running job. Cancelling a
// finished or unknown job is a no-op; already-published outcomes stand.
func (s *Service) Cancel(jobID string) error {
	if cancelRaw, ok := s.cancels.Load(jobID); ok {
		if cancelFn, ok := cancelRaw.(context.CancelFunc); ok {
			cancelFn()
		}
		s.log.Info("job cancel requested", "jobId", jobID)
		return nil
	}

	s.mu.Lock()
	_, done := s.reports[jobID]
	s.mu.Unlock()
	if done {
		return nil
	}
	return ErrNotFound("job %q not found", jobID)
}

// TestConnection runs the open-then-close credential probe.
func (s *Service) TestConnection(ctx context.Context, profile db.Profile) error {
	return s.connector.TestConnection(ctx, profile)
}

// ListDatabases returns the catalogs available on a server.
func (s *Service) ListDatabases(ctx context.Context, profile db.Profile) ([]string, error) {
	return s.connector.ListDatabases(ctx, profile)
}
