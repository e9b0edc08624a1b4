package query

import (
	"context"
	"log/slog"

	"sql-fanout/pkg/db"
)

// Aggregator is the single sink through which workers report outcomes.
// Publish is safe from any number of workers; Drain runs on the one consumer.
type Aggregator struct {
	ch       chan Outcome
	expected int
	log      *slog.Logger
}

// NewAggregator sizes the queue to the expected outcome count so a publishing
// worker never blocks on a slow consumer.
func NewAggregator(expected int, log *slog.Logger) *Aggregator {
	return &Aggregator{
		ch:       make(chan Outcome, expected),
		expected: expected,
		log:      log,
	}
}

// Publish delivers one terminal outcome. Each worker calls it exactly once,
// so the buffered send never blocks in practice.
func (a *Aggregator) Publish(o Outcome) {
	a.ch <- o
}

// Drain receives outcomes in arrival order until every expected target has
// reported. A duplicate publish for a target id is an internal contract
// violation: it is logged and ignored, never overwrites the first outcome.
// If ctx expires first, a Failed outcome is synthesized for each target that
// never reported so no target is silently dropped.
func (a *Aggregator) Drain(ctx context.Context, targets []Target) map[string]Outcome {
	outcomes := make(map[string]Outcome, a.expected)

	for len(outcomes) < a.expected {
		select {
		case o := <-a.ch:
			if _, ok := outcomes[o.TargetID]; ok {
				a.log.Error("duplicate outcome published", "targetId", o.TargetID)
				continue
			}
			outcomes[o.TargetID] = o
		case <-ctx.Done():
			for _, t := range targets {
				if _, ok := outcomes[t.ID]; !ok {
					a.log.Error("missing outcome, synthesizing failure", "targetId", t.ID)
					outcomes[t.ID] = Outcome{
						TargetID: t.ID,
						Status:   StatusFailed,
						Err:      missingOutcomeDetail(),
					}
				}
			}
			return outcomes
		}
	}
	return outcomes
}

func missingOutcomeDetail() *db.Error {
	return &db.Error{Kind: db.KindUnknown, Message: "worker never reported an outcome"}
}
