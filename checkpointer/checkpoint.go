package checkpointer

import (
	"sort"
	"time"
)

// Checkpoint is the durable log of all validated events processed so far,
// in ascending timestamp order. It is a value: AddEvents returns a new
// Checkpoint and never mutates the receiver, so old-vs-new states can be
// compared directly. It is not a deduplicated set; near-duplicate records
// for the same visit are all retained.
type Checkpoint struct {
	rows []VisitEvent
}

// EmptyCheckpoint returns a checkpoint with zero rows (first run).
func EmptyCheckpoint() Checkpoint {
	return Checkpoint{}
}

// CheckpointFromRecords materializes a checkpoint from a flat record list.
// The input is copied; row order is preserved as given.
func CheckpointFromRecords(events []VisitEvent) Checkpoint {
	rows := make([]VisitEvent, len(events))
	copy(rows, events)
	return Checkpoint{rows: rows}
}

// LastTimestamp returns the maximum timestamp over all rows. ok is false
// for an empty checkpoint.
func (c Checkpoint) LastTimestamp() (ts time.Time, ok bool) {
	for _, ev := range c.rows {
		if !ok || ev.Timestamp.After(ts) {
			ts = ev.Timestamp
			ok = true
		}
	}
	return ts, ok
}

// AddEvents returns a new checkpoint holding every existing row plus every
// new event, sorted ascending by timestamp. The sort is stable, so ties
// keep their input order. No rows are ever dropped or deduplicated.
func (c Checkpoint) AddEvents(events []VisitEvent) Checkpoint {
	merged := make([]VisitEvent, 0, len(c.rows)+len(events))
	merged = append(merged, c.rows...)
	merged = append(merged, events...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return Checkpoint{rows: merged}
}

func (c Checkpoint) RowCount() int { return len(c.rows) }

func (c Checkpoint) IsEmpty() bool { return len(c.rows) == 0 }

// Rows returns a copy of the underlying rows.
func (c Checkpoint) Rows() []VisitEvent {
	out := make([]VisitEvent, len(c.rows))
	copy(out, c.rows)
	return out
}
