package req

import (
	"encoding/json"
	"io"
	"net/http"

	"sql-fanout/pkg/res"
)

func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	err := json.NewDecoder(body).Decode(&payload)
	return payload, err
}

func HandleBody[T any](w *http.ResponseWriter, r *http.Request) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		res.Json(*w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return nil, err
	}
	return &body, nil
}
