package history

import (
	"fmt"
	"sort"

	"snagline/internal/domain"
)

// TimelineEntry is one rendered line of a defect's audit timeline.
type TimelineEntry struct {
	ActorID string `json:"actor_id"`
	Field   string `json:"field"`
	Change  string `json:"change"`
	Note    string `json:"note,omitempty"`
	At      string `json:"at" format:"date-time"`
}

// replayOrder returns a copy sorted into creation order, oldest first. The
// projection accepts the event slice in either order.
func replayOrder(events []domain.HistoryEvent) []domain.HistoryEvent {
	sorted := make([]domain.HistoryEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func renderValue(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

// Timeline renders the event sequence into display entries, newest first.
// It is a pure function of its input; no store lookups.
func Timeline(events []domain.HistoryEvent) []TimelineEntry {
	ordered := replayOrder(events)
	entries := make([]TimelineEntry, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		ev := ordered[i]
		entries = append(entries, TimelineEntry{
			ActorID: ev.ActorID,
			Field:   ev.Field,
			Change:  fmt.Sprintf("%s -> %s", renderValue(ev.OldValue), renderValue(ev.NewValue)),
			Note:    ev.Note,
			At:      ev.CreatedAt,
		})
	}
	return entries
}

// FieldValueAt reconstructs the value a field held at the given instant by
// replaying that field's events up to and including it. When no event for the
// field exists in range, the value is whatever was set at creation, which the
// caller supplies as fallback.
func FieldValueAt(events []domain.HistoryEvent, field, at, fallback string) string {
	value := fallback
	for _, ev := range replayOrder(events) {
		if ev.Field != field {
			continue
		}
		if at != "" && ev.CreatedAt > at {
			break
		}
		value = ev.NewValue
	}
	return value
}

// ReplayStatus reconstructs the current status purely from the event
// sequence. The second return is false when the sequence carries no status
// event at all, which for a well-formed defect never happens: creation always
// writes one.
func ReplayStatus(events []domain.HistoryEvent) (domain.Status, bool) {
	found := false
	var status domain.Status
	for _, ev := range replayOrder(events) {
		if ev.Field != domain.FieldStatus {
			continue
		}
		if ev.ToStatus != nil {
			status = *ev.ToStatus
		} else {
			status = domain.Status(ev.NewValue)
		}
		found = true
	}
	return status, found
}
