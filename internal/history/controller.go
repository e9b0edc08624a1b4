package history

import (
	"errors"
	"net/http"
	"strconv"

	"sql-fanout/pkg/res"
)

type ControllerDeps struct {
	Store Store
}

type Controller struct {
	store Store
}

func NewController(router *http.ServeMux, deps ControllerDeps) *Controller {
	c := &Controller{store: deps.Store}
	router.Handle("GET /history", c.List())
	router.Handle("GET /history/{jobId}", c.Find())
	router.Handle("DELETE /history", c.Clear())
	return c
}

func (c *Controller) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		entries, err := c.store.List(r.Context(), limit, offset)
		if err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}

		res.Json(w, map[string]any{"entries": entries}, http.StatusOK)
	}
}

func (c *Controller) Find() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := c.store.Find(r.Context(), r.PathValue("jobId"))
		if err != nil {
			var notFoundErr *NotFoundError
			status := http.StatusInternalServerError
			if errors.As(err, &notFoundErr) {
				status = http.StatusNotFound
			}
			res.Json(w, map[string]any{"error": err.Error()}, status)
			return
		}

		res.Json(w, entry, http.StatusOK)
	}
}

func (c *Controller) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.store.Clear(r.Context()); err != nil {
			res.Json(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
			return
		}

		res.Json(w, map[string]any{"cleared": true}, http.StatusOK)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
