package query

import (
	"time"

	"sql-fanout/pkg/db"
)

// Status is the terminal state of one target within one job.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// OverallStatus is derived from the full set of target outcomes.
type OverallStatus string

const (
	OverallAllSucceeded   OverallStatus = "all_succeeded"
	OverallPartialFailure OverallStatus = "partial_failure"
	OverallAllFailed      OverallStatus = "all_failed"
	OverallCancelled      OverallStatus = "cancelled"
)

// Target is one database catalog the query will run against. Many targets may
// share one profile (same server, different catalogs).
type Target struct {
	ID       string     `json:"id"`
	Database string     `json:"database"`
	Profile  db.Profile `json:"profile"`
}

// Job is one submitted query execution spanning all selected targets.
// Immutable after creation.
type Job struct {
	ID          string    `json:"jobId"`
	QueryText   string    `json:"query"`
	Targets     []Target  `json:"targets"`
	SubmittedAt time.Time `json:"submittedAt"`

	// seq is the submission sequence number; history ordering follows it
	// regardless of completion order.
	seq uint64
}

// Outcome is the terminal result for one target. Produced exactly once per
// target per job.
type Outcome struct {
	TargetID     string    `json:"targetId"`
	Status       Status    `json:"status"`
	Columns      []string  `json:"columns,omitempty"`
	Rows         [][]any   `json:"rows,omitempty"`
	RowsTotal    int       `json:"rowsTotal"`
	RowsAffected int64     `json:"rowsAffected,omitempty"`
	Err          *db.Error `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	WarningNote  string    `json:"warningNote,omitempty"`
}

// Report is the aggregated result of a job across all its targets. TargetOrder
// preserves the selection order for display; Outcomes is keyed by target id.
type Report struct {
	JobID       string             `json:"jobId"`
	Outcomes    map[string]Outcome `json:"outcomes"`
	TargetOrder []string           `json:"targetOrder"`
	Overall     OverallStatus      `json:"overallStatus"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
}

// buildReport assembles the report once every target has a terminal outcome.
func buildReport(job *Job, outcomes map[string]Outcome, cancelled bool, startedAt time.Time) *Report {
	order := make([]string, len(job.Targets))
	for i, t := range job.Targets {
		order[i] = t.ID
	}
	return &Report{
		JobID:       job.ID,
		Outcomes:    outcomes,
		TargetOrder: order,
		Overall:     deriveOverall(outcomes, cancelled),
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
}

func deriveOverall(outcomes map[string]Outcome, cancelled bool) OverallStatus {
	allSuccess := true
	allFailed := true
	anyCancelled := false

	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			allFailed = false
		case StatusFailed, StatusTimedOut:
			allSuccess = false
		case StatusCancelled:
			anyCancelled = true
			allSuccess = false
			allFailed = false
		}
	}

	switch {
	case cancelled && anyCancelled:
		return OverallCancelled
	case allSuccess:
		return OverallAllSucceeded
	case allFailed:
		return OverallAllFailed
	default:
		return OverallPartialFailure
	}
}
