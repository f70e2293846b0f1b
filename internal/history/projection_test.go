package history

import (
	"testing"

	"snagline/internal/domain"
)

func statusPtr(s domain.Status) *domain.Status { return &s }

func statusEvents() []domain.HistoryEvent {
	return []domain.HistoryEvent{
		{ID: 1, Field: domain.FieldStatus, NewValue: "NEW", ToStatus: statusPtr(domain.StatusNew), ActorID: "U1", Note: "creation", CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: 2, Field: domain.FieldPriority, OldValue: "MEDIUM", NewValue: "HIGH", ActorID: "U2", CreatedAt: "2026-01-02T10:00:00Z"},
		{ID: 3, Field: domain.FieldStatus, OldValue: "NEW", NewValue: "IN_PROGRESS", FromStatus: statusPtr(domain.StatusNew), ToStatus: statusPtr(domain.StatusInProgress), ActorID: "U2", CreatedAt: "2026-01-03T10:00:00Z"},
		{ID: 4, Field: domain.FieldStatus, OldValue: "IN_PROGRESS", NewValue: "IN_REVIEW", FromStatus: statusPtr(domain.StatusInProgress), ToStatus: statusPtr(domain.StatusInReview), ActorID: "U1", CreatedAt: "2026-01-04T10:00:00Z"},
	}
}

func TestTimelineNewestFirst(t *testing.T) {
	entries := Timeline(statusEvents())
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].At != "2026-01-04T10:00:00Z" || entries[3].At != "2026-01-01T10:00:00Z" {
		t.Fatalf("entries not newest first: %v", entries)
	}
	if entries[3].Change != "(none) -> NEW" {
		t.Fatalf("creation change rendered as %q", entries[3].Change)
	}
	if entries[1].Change != "NEW -> IN_PROGRESS" {
		t.Fatalf("transition change rendered as %q", entries[1].Change)
	}
	if entries[3].Note != "creation" {
		t.Fatalf("note lost: %+v", entries[3])
	}
}

func TestTimelineAcceptsAnyInputOrder(t *testing.T) {
	events := statusEvents()
	// Feed the slice backwards; the projection must not care.
	reversed := make([]domain.HistoryEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		reversed = append(reversed, events[i])
	}
	a, b := Timeline(events), Timeline(reversed)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("order-dependent projection at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestReplayStatus(t *testing.T) {
	status, ok := ReplayStatus(statusEvents())
	if !ok || status != domain.StatusInReview {
		t.Fatalf("expected IN_REVIEW, got %s (%v)", status, ok)
	}

	if _, ok := ReplayStatus(nil); ok {
		t.Fatalf("empty sequence should report no status")
	}

	// Priority-only events carry no status either.
	_, ok = ReplayStatus([]domain.HistoryEvent{
		{ID: 9, Field: domain.FieldPriority, OldValue: "LOW", NewValue: "HIGH", CreatedAt: "2026-01-01T10:00:00Z"},
	})
	if ok {
		t.Fatalf("non-status events should report no status")
	}
}

func TestFieldValueAt(t *testing.T) {
	events := statusEvents()

	if got := FieldValueAt(events, domain.FieldPriority, "2026-01-01T12:00:00Z", "MEDIUM"); got != "MEDIUM" {
		t.Fatalf("before the change: %q", got)
	}
	if got := FieldValueAt(events, domain.FieldPriority, "2026-01-02T12:00:00Z", "MEDIUM"); got != "HIGH" {
		t.Fatalf("after the change: %q", got)
	}
	// Empty instant means now.
	if got := FieldValueAt(events, domain.FieldStatus, "", ""); got != "IN_REVIEW" {
		t.Fatalf("current status: %q", got)
	}
	if got := FieldValueAt(events, domain.FieldAssignee, "", "U5"); got != "U5" {
		t.Fatalf("untouched field should fall back: %q", got)
	}
}
