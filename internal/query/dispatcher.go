package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"sql-fanout/pkg/db"
)

// Session is one open connection to a single target. Execute and Close block
// and run only inside a worker.
type Session interface {
	Execute(ctx context.Context, batch string) (*db.BatchResult, error)
	Close() error
}

// Connector opens sessions and runs the pre-flight probes. Implemented by
// db.Manager; tests substitute fakes.
type Connector interface {
	Open(ctx context.Context, profile db.Profile, database string) (Session, error)
	TestConnection(ctx context.Context, profile db.Profile) error
	ListDatabases(ctx context.Context, profile db.Profile) ([]string, error)
}

// managerConnector adapts db.Manager's concrete *db.Conn to the Session
// interface.
type managerConnector struct {
	m *db.Manager
}

func (c managerConnector) Open(ctx context.Context, profile db.Profile, database string) (Session, error) {
	return c.m.Open(ctx, profile, database)
}

func (c managerConnector) TestConnection(ctx context.Context, profile db.Profile) error {
	return c.m.TestConnection(ctx, profile)
}

func (c managerConnector) ListDatabases(ctx context.Context, profile db.Profile) ([]string, error) {
	return c.m.ListDatabases(ctx, profile)
}

// NewManagerConnector wraps a db.Manager for use by the dispatcher.
func NewManagerConnector(m *db.Manager) Connector {
	return managerConnector{m: m}
}

// Dispatcher fans a job out to one worker per target, capped by a semaphore.
// Workers never share a connection and never communicate with each other;
// every worker publishes exactly one outcome on every exit path.
type Dispatcher struct {
	connector      Connector
	sem            *semaphore.Weighted
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	log            *slog.Logger
}

func NewDispatcher(connector Connector, maxWorkers int, defaultTimeout, maxTimeout time.Duration, log *slog.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Dispatcher{
		connector:      connector,
		sem:            semaphore.NewWeighted(int64(maxWorkers)),
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
		log:            log,
	}
}

// Dispatch starts one worker per target and returns immediately. Cancelling
// ctx cancels the job: targets not yet finished publish Cancelled outcomes,
// already-published outcomes stand.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job, agg *Aggregator) {
	batches := SplitBatches(job.QueryText)
	for _, target := range job.Targets {
		go d.runTarget(ctx, job, target, batches, agg)
	}
}

func (d *Dispatcher) targetTimeout(t Target) time.Duration {
	timeout := d.defaultTimeout
	if t.Profile.DefaultTimeoutMs > 0 {
		timeout = time.Duration(t.Profile.DefaultTimeoutMs) * time.Millisecond
	}
	if d.maxTimeout > 0 && timeout > d.maxTimeout {
		timeout = d.maxTimeout
	}
	return timeout
}

func (d *Dispatcher) runTarget(ctx context.Context, job *Job, target Target, batches []string, agg *Aggregator) {
	start := time.Now()

	// Deferred first so it runs last: the session is already closed by the
	// time the outcome becomes visible to the consumer.
	var outcome Outcome
	defer func() {
		outcome.TargetID = target.ID
		outcome.DurationMs = time.Since(start).Milliseconds()
		agg.Publish(outcome)
	}()

	// Wait for a pool slot; excess targets queue here.
	if err := d.sem.Acquire(ctx, 1); err != nil {
		outcome = Outcome{Status: StatusCancelled}
		return
	}
	defer d.sem.Release(1)

	if ctx.Err() != nil {
		outcome = Outcome{Status: StatusCancelled}
		return
	}

	tctx, cancel := context.WithTimeout(ctx, d.targetTimeout(target))
	defer cancel()

	sess, err := d.connector.Open(tctx, target.Profile, target.Database)
	if err != nil {
		outcome = d.failureOutcome(ctx, tctx, err, "connect")
		return
	}
	// Closed on every exit path, including timeout and cancellation.
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			d.log.Warn("closing target session", "jobId", job.ID, "targetId", target.ID, "err", cerr)
		}
	}()

	// Cancellation checkpoint between open and execute.
	if ctx.Err() != nil {
		outcome = Outcome{Status: StatusCancelled}
		return
	}

	outcome = d.executeBatches(ctx, tctx, sess, batches)
}

// executeBatches runs the batches in order on one session. A failing batch is
// recorded and execution continues with the next one; transport-level failures
// stop the loop since the session is gone.
func (d *Dispatcher) executeBatches(jobCtx, tctx context.Context, sess Session, batches []string) Outcome {
	var (
		columns      []string
		rows         [][]any
		rowsTotal    int
		rowsAffected int64
		setCount     int
		firstErr     *db.Error
	)

	for _, batch := range batches {
		// Cancellation checkpoint between batches.
		if jobCtx.Err() != nil {
			return Outcome{Status: StatusCancelled}
		}

		res, err := sess.Execute(tctx, batch)
		if err != nil {
			if o, terminal := d.transportFailure(jobCtx, tctx, err); terminal {
				if firstErr != nil && o.Status == StatusFailed {
					o.Err = firstErr
				}
				return o
			}
			if firstErr == nil {
				firstErr = classified(err)
			}
			continue
		}

		rowsTotal += res.RowsTotal
		rowsAffected += res.RowsAffected
		setCount += len(res.Sets)
		if columns == nil && len(res.Sets) > 0 {
			columns = res.Sets[0].Columns
			rows = res.Sets[0].Rows
		}
	}

	outcome := Outcome{
		Status:       StatusSuccess,
		Columns:      columns,
		Rows:         rows,
		RowsTotal:    rowsTotal,
		RowsAffected: rowsAffected,
	}
	if setCount > 1 {
		outcome.WarningNote = "query returned multiple result sets; only the first is included in rows"
	}
	if firstErr != nil {
		outcome.Status = StatusFailed
		outcome.Err = firstErr
	}
	return outcome
}

// transportFailure decides whether an execute error ends the target: job
// cancellation, per-target timeout, or a lost connection.
func (d *Dispatcher) transportFailure(jobCtx, tctx context.Context, err error) (Outcome, bool) {
	if jobCtx.Err() != nil {
		return Outcome{Status: StatusCancelled}, true
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return Outcome{Status: StatusTimedOut, Err: timeoutDetail(err)}, true
	}
	detail := classified(err)
	if detail.Kind == db.KindConnectionLost {
		return Outcome{Status: StatusFailed, Err: detail}, true
	}
	return Outcome{}, false
}

// failureOutcome maps a connect-phase error to its terminal status.
func (d *Dispatcher) failureOutcome(jobCtx, tctx context.Context, err error, phase string) Outcome {
	if jobCtx.Err() != nil {
		return Outcome{Status: StatusCancelled}
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return Outcome{Status: StatusTimedOut, Err: timeoutDetail(err)}
	}
	d.log.Debug("target failure", "phase", phase, "err", err)
	return Outcome{Status: StatusFailed, Err: classified(err)}
}

func classified(err error) *db.Error {
	var e *db.Error
	if errors.As(err, &e) {
		return e
	}
	return &db.Error{Kind: db.KindUnknown, Message: err.Error()}
}

func timeoutDetail(err error) *db.Error {
	detail := classified(err)
	if detail.Kind == db.KindUnknown {
		return &db.Error{Kind: db.KindExecutionTimeout, Message: detail.Message}
	}
	return detail
}
