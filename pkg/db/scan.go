package db

import (
	"database/sql"
	"encoding/base64"
	"time"
	"unicode/utf8"
)

// ResultSet is one fully materialized result set: ordered column names and
// rows of ordered, JSON-safe cell values.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// BatchResult is the outcome of executing a single batch on one session.
type BatchResult struct {
	Sets         []ResultSet
	RowsTotal    int
	RowsAffected int64
}

func anyToJSONSafe(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return map[string]any{
			"type":   "bytes",
			"base64": base64.StdEncoding.EncodeToString(x),
		}
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return x
	}
}

func scanResultSets(rows *sql.Rows) ([]ResultSet, int, error) {
	totalRows := 0
	var resultSets []ResultSet

	for {
		cols, err := rows.Columns()
		if err != nil {
			return nil, 0, err
		}

		rs := ResultSet{
			Columns: cols,
			Rows:    make([][]any, 0, 64),
		}

		for rows.Next() {
			totalRows++

			raw := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, 0, err
			}

			row := make([]any, len(cols))
			for i := range cols {
				row[i] = anyToJSONSafe(raw[i])
			}
			rs.Rows = append(rs.Rows, row)
		}

		if err := rows.Err(); err != nil {
			return nil, 0, err
		}

		if len(rs.Columns) > 0 {
			resultSets = append(resultSets, rs)
		}

		if !rows.NextResultSet() {
			break
		}
	}

	return resultSets, totalRows, nil
}
