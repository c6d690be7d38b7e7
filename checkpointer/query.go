package checkpointer

import (
	"sort"
	"time"
)

// Query helpers backing the monthly-report checks: center filtering and
// per-action counts, plus packet and range filters. All are pure reads
// over the checkpoint rows.

// FilterByCenter returns every event for the given center label.
func (c Checkpoint) FilterByCenter(centerLabel string) []VisitEvent {
	var out []VisitEvent
	for _, ev := range c.rows {
		if ev.CenterLabel == centerLabel {
			out = append(out, ev)
		}
	}
	return out
}

// CountByAction counts events with the given action.
func (c Checkpoint) CountByAction(action string) int {
	n := 0
	for _, ev := range c.rows {
		if ev.Action == action {
			n++
		}
	}
	return n
}

// ActionCounts returns per-action event counts.
func (c Checkpoint) ActionCounts() map[string]int {
	counts := make(map[string]int)
	for _, ev := range c.rows {
		counts[ev.Action]++
	}
	return counts
}

// FilterByPacket returns events with the given packet type. Events whose
// packet is null never match.
func (c Checkpoint) FilterByPacket(packet string) []VisitEvent {
	var out []VisitEvent
	for _, ev := range c.rows {
		if ev.Packet != nil && *ev.Packet == packet {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByVisitDateRange returns events whose visit_date falls in
// [from, to], inclusive. Dates are YYYY-MM-DD strings, so lexicographic
// comparison is chronological.
func (c Checkpoint) FilterByVisitDateRange(from, to string) []VisitEvent {
	var out []VisitEvent
	for _, ev := range c.rows {
		if ev.VisitDate >= from && ev.VisitDate <= to {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByTimestampRange returns events whose timestamp falls in [from, to],
// inclusive on both ends like the visit-date range filter.
func (c Checkpoint) FilterByTimestampRange(from, to time.Time) []VisitEvent {
	var out []VisitEvent
	for _, ev := range c.rows {
		if !ev.Timestamp.Before(from) && !ev.Timestamp.After(to) {
			out = append(out, ev)
		}
	}
	return out
}

// Centers returns the sorted distinct center labels present.
func (c Checkpoint) Centers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range c.rows {
		if _, ok := seen[ev.CenterLabel]; ok {
			continue
		}
		seen[ev.CenterLabel] = struct{}{}
		out = append(out, ev.CenterLabel)
	}
	sort.Strings(out)
	return out
}
