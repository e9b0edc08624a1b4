package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-fanout/pkg/db"
)

type stubSession struct {
	exec   func(ctx context.Context, batch string) (*db.BatchResult, error)
	closes atomic.Int32
}

func (s *stubSession) Execute(ctx context.Context, batch string) (*db.BatchResult, error) {
	if s.exec != nil {
		return s.exec(ctx, batch)
	}
	return &db.BatchResult{
		Sets:      []db.ResultSet{{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}},
		RowsTotal: 1,
	}, nil
}

func (s *stubSession) Close() error {
	s.closes.Add(1)
	return nil
}

type stubConnector struct {
	mu       sync.Mutex
	open     func(ctx context.Context, profile db.Profile, database string) (*stubSession, error)
	sessions map[string]*stubSession
}

func newStubConnector(open func(ctx context.Context, profile db.Profile, database string) (*stubSession, error)) *stubConnector {
	return &stubConnector{open: open, sessions: make(map[string]*stubSession)}
}

func (c *stubConnector) Open(ctx context.Context, profile db.Profile, database string) (Session, error) {
	sess, err := c.open(ctx, profile, database)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sessions[database] = sess
	c.mu.Unlock()
	return sess, nil
}

func (c *stubConnector) TestConnection(ctx context.Context, profile db.Profile) error {
	sess, err := c.open(ctx, profile, "")
	if err != nil {
		return err
	}
	return sess.Close()
}

func (c *stubConnector) ListDatabases(context.Context, db.Profile) ([]string, error) {
	return []string{"db1", "db2"}, nil
}

func (c *stubConnector) session(database string) *stubSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[database]
}

func okSession() *stubSession { return &stubSession{} }

func makeJob(query string, databases ...string) *Job {
	targets := make([]Target, len(databases))
	for i, database := range databases {
		targets[i] = Target{
			ID:       database,
			Database: database,
			Profile:  db.Profile{Server: "srv", User: "sa"},
		}
	}
	return &Job{ID: "job-1", QueryText: query, Targets: targets, SubmittedAt: time.Now()}
}

func dispatchAndDrain(t *testing.T, d *Dispatcher, job *Job) map[string]Outcome {
	t.Helper()
	agg := NewAggregator(len(job.Targets), testLogger())
	d.Dispatch(context.Background(), job, agg)
	return agg.Drain(context.Background(), job.Targets)
}

func TestDispatcherAllTargetsSucceed(t *testing.T) {
	connector := newStubConnector(func(context.Context, db.Profile, string) (*stubSession, error) {
		return okSession(), nil
	})
	d := NewDispatcher(connector, 4, time.Second, time.Minute, testLogger())

	job := makeJob("SELECT 1", "db1", "db2", "db3")
	outcomes := dispatchAndDrain(t, d, job)

	require.Len(t, outcomes, 3)
	for _, database := range []string{"db1", "db2", "db3"} {
		o := outcomes[database]
		assert.Equal(t, StatusSuccess, o.Status)
		assert.Equal(t, []string{"n"}, o.Columns)
		assert.Equal(t, 1, o.RowsTotal)
		assert.Equal(t, int32(1), connector.session(database).closes.Load())
	}
	assert.Equal(t, OverallAllSucceeded, deriveOverall(outcomes, false))
}

func TestDispatcherIsolatesFailingTarget(t *testing.T) {
	connector := newStubConnector(func(_ context.Context, _ db.Profile, database string) (*stubSession, error) {
		if database == "db2" {
			return nil, &db.Error{Kind: db.KindAuthFailed, Number: 18456, Message: "Login failed for user 'sa'."}
		}
		return okSession(), nil
	})
	d := NewDispatcher(connector, 4, time.Second, time.Minute, testLogger())

	job := makeJob("SELECT 1", "db1", "db2", "db3")
	outcomes := dispatchAndDrain(t, d, job)

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusSuccess, outcomes["db1"].Status)
	assert.Equal(t, StatusSuccess, outcomes["db3"].Status)

	failed := outcomes["db2"]
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.Err)
	assert.Equal(t, db.KindAuthFailed, failed.Err.Kind)
	assert.Equal(t, int32(18456), failed.Err.Number)

	assert.Equal(t, OverallPartialFailure, deriveOverall(outcomes, false))
}

func TestDispatcherTimeoutClosesConnection(t *testing.T) {
	connector := newStubConnector(func(_ context.Context, _ db.Profile, database string) (*stubSession, error) {
		sess := okSession()
		if database == "slow" {
			sess.exec = func(ctx context.Context, _ string) (*db.BatchResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
		}
		return sess, nil
	})
	d := NewDispatcher(connector, 4, time.Second, time.Minute, testLogger())

	job := makeJob("SELECT 1", "fast", "slow")
	job.Targets[1].Profile.DefaultTimeoutMs = 30

	outcomes := dispatchAndDrain(t, d, job)

	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusSuccess, outcomes["fast"].Status)
	assert.Equal(t, StatusTimedOut, outcomes["slow"].Status)

	assert.Equal(t, int32(1), connector.session("slow").closes.Load())
	assert.Equal(t, int32(1), connector.session("fast").closes.Load())
}

func TestDispatcherCancellation(t *testing.T) {
	release := make(chan struct{})
	connector := newStubConnector(func(_ context.Context, _ db.Profile, database string) (*stubSession, error) {
		sess := okSession()
		if database != "fast" {
			sess.exec = func(ctx context.Context, _ string) (*db.BatchResult, error) {
				select {
				case <-release:
					return &db.BatchResult{}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
		return sess, nil
	})
	d := NewDispatcher(connector, 4, time.Second, time.Minute, testLogger())

	job := makeJob("SELECT 1", "fast", "held1", "held2")
	agg := NewAggregator(len(job.Targets), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, job, agg)

	// Wait for the fast target to finish, then cancel the job.
	require.Eventually(t, func() bool {
		sess := connector.session("fast")
		return sess != nil && sess.closes.Load() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	outcomes := agg.Drain(context.Background(), job.Targets)
	close(release)

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusSuccess, outcomes["fast"].Status)
	assert.Equal(t, StatusCancelled, outcomes["held1"].Status)
	assert.Equal(t, StatusCancelled, outcomes["held2"].Status)
	assert.Equal(t, OverallCancelled, deriveOverall(outcomes, true))
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32

	connector := newStubConnector(func(context.Context, db.Profile, string) (*stubSession, error) {
		sess := okSession()
		sess.exec = func(context.Context, string) (*db.BatchResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return &db.BatchResult{}, nil
		}
		return sess, nil
	})
	d := NewDispatcher(connector, 2, time.Second, time.Minute, testLogger())

	job := makeJob("SELECT 1", "db1", "db2", "db3", "db4", "db5")
	outcomes := dispatchAndDrain(t, d, job)

	require.Len(t, outcomes, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcherBatchErrorContinues(t *testing.T) {
	var executed []string
	var mu sync.Mutex

	connector := newStubConnector(func(context.Context, db.Profile, string) (*stubSession, error) {
		sess := &stubSession{}
		sess.exec = func(_ context.Context, batch string) (*db.BatchResult, error) {
			mu.Lock()
			executed = append(executed, batch)
			mu.Unlock()
			if batch == "BROKEN" {
				return nil, &db.Error{Kind: db.KindSyntaxError, Number: 102, Message: "Incorrect syntax"}
			}
			return &db.BatchResult{RowsAffected: 1}, nil
		}
		return sess, nil
	})
	d := NewDispatcher(connector, 1, time.Second, time.Minute, testLogger())

	job := makeJob("UPDATE t SET x = 1\nGO\nBROKEN\nGO\nUPDATE t SET y = 2", "db1")
	outcomes := dispatchAndDrain(t, d, job)

	o := outcomes["db1"]
	assert.Equal(t, StatusFailed, o.Status)
	require.NotNil(t, o.Err)
	assert.Equal(t, db.KindSyntaxError, o.Err.Kind)
	// The failing batch does not stop the remaining ones.
	assert.Equal(t, []string{"UPDATE t SET x = 1", "BROKEN", "UPDATE t SET y = 2"}, executed)
	assert.Equal(t, int64(2), o.RowsAffected)
}
