package query

import "sql-fanout/pkg/db"

type SubmitRequest struct {
	Query   string   `json:"query"`
	Targets []Target `json:"targets"`
}

type SubmitResponse struct {
	JobID string `json:"jobId"`
}

type PendingResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type ProfileRequest struct {
	Profile db.Profile `json:"profile"`
}

type TestConnectionResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type DatabasesResponse struct {
	Databases []string `json:"databases"`
}
