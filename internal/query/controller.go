package query

import (
	"errors"
	"net/http"

	"sql-fanout/pkg/req"
	"sql-fanout/pkg/res"
)

type ControllerDeps struct {
	Service *Service
}

type Controller struct {
	service *Service
}

func NewController(router *http.ServeMux, deps ControllerDeps) *Controller {
	c := &Controller{service: deps.Service}
	router.Handle("POST /query", c.Submit())
	router.Handle("GET /query/{jobId}", c.Report())
	router.Handle("POST /query/{jobId}/cancel", c.Cancel())
	router.Handle("POST /connection/test", c.TestConnection())
	router.Handle("POST /connection/databases", c.ListDatabases())
	return c
}

func (c *Controller) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := req.HandleBody[SubmitRequest](&w, r)
		if err != nil {
			return
		}

		for _, t := range body.Targets {
			if t.ID == "" || t.Database == "" {
				res.Json(w, map[string]any{
					"error": "targets[].id and targets[].database are required",
				}, http.StatusBadRequest)
				return
			}
			if t.Profile.Server == "" || t.Profile.User == "" {
				res.Json(w, map[string]any{
					"error": "targets[].profile.server and targets[].profile.user are required",
				}, http.StatusBadRequest)
				return
			}
		}

		job, err := c.service.Submit(body.Query, body.Targets)
		if err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, statusFor(err))
			return
		}

		res.Json(w, SubmitResponse{JobID: job.ID}, http.StatusAccepted)
	}
}

func (c *Controller) Report() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("jobId")

		report, pending, err := c.service.Report(r.Context(), jobID)
		if err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, statusFor(err))
			return
		}
		if pending {
			res.Json(w, PendingResponse{JobID: jobID, Status: "pending"}, http.StatusOK)
			return
		}

		res.Json(w, report, http.StatusOK)
	}
}

func (c *Controller) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("jobId")

		if err := c.service.Cancel(jobID); err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, statusFor(err))
			return
		}

		res.Json(w, map[string]any{"jobId": jobID, "cancelled": true}, http.StatusOK)
	}
}

func (c *Controller) TestConnection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := req.HandleBody[ProfileRequest](&w, r)
		if err != nil {
			return
		}

		if err := c.service.TestConnection(r.Context(), body.Profile); err != nil {
			res.Json(w, TestConnectionResponse{Ok: false, Error: err.Error()}, http.StatusOK)
			return
		}

		res.Json(w, TestConnectionResponse{Ok: true}, http.StatusOK)
	}
}

func (c *Controller) ListDatabases() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := req.HandleBody[ProfileRequest](&w, r)
		if err != nil {
			return
		}

		databases, err := c.service.ListDatabases(r.Context(), body.Profile)
		if err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
			return
		}

		res.Json(w, DatabasesResponse{Databases: databases}, http.StatusOK)
	}
}

func statusFor(err error) int {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
