package query

import "strings"

// SplitBatches splits a script on GO batch separators (a line consisting of
// only GO, case-insensitive). Batches run sequentially on one connection.
// Statement-level splitting inside a batch is left to the server.
func SplitBatches(q string) []string {
	lines := strings.Split(q, "\n")

	var batches []string
	var current []string

	flush := func() {
		batch := strings.TrimSpace(strings.Join(current, "\n"))
		if batch != "" {
			batches = append(batches, batch)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "go") {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return batches
}
