package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"snagline/internal/config"
	"snagline/internal/db"
	"snagline/internal/domain"
	"snagline/internal/engine"
	"snagline/internal/history"
	"snagline/internal/migrate"
	"snagline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

// tick advances the fake clock so consecutive writes get distinct timestamps.
func (env testEnv) tick() {
	*env.clock = env.clock.Add(time.Minute)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return now }
	eng.History.Now = eng.Now
	ctx := context.Background()

	seed := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	ts := now.Format(time.RFC3339)
	seed(eng.Repo.InsertProject(ctx, domain.Project{ID: "P1", Name: "Tower A", CreatedAt: ts}))
	seed(eng.Repo.InsertProject(ctx, domain.Project{ID: "P2", Name: "Tower B", CreatedAt: ts}))
	seed(eng.Repo.InsertStage(ctx, domain.Stage{ID: "S1", ProjectID: "P1", Name: "Foundation", Position: 1, CreatedAt: ts}))
	seed(eng.Repo.InsertStage(ctx, domain.Stage{ID: "S2", ProjectID: "P2", Name: "Facade", Position: 1, CreatedAt: ts}))
	seed(eng.Repo.InsertUser(ctx, domain.User{ID: "U1", Name: "Reporter", Email: "reporter@site.test", PasswordHash: "x", Role: domain.RoleEngineer, CreatedAt: ts}))
	seed(eng.Repo.InsertUser(ctx, domain.User{ID: "U2", Name: "Assignee", Email: "assignee@site.test", PasswordHash: "x", Role: domain.RoleEngineer, CreatedAt: ts}))

	return testEnv{Engine: eng, Ctx: ctx, clock: &now}
}

func mustCreate(t *testing.T, env testEnv, opts engine.DefectCreateOptions) domain.Defect {
	t.Helper()
	if opts.ReporterID == "" {
		opts.ReporterID = "U1"
	}
	d, err := env.Engine.CreateDefect(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create defect: %v", err)
	}
	return d
}

func historyCount(t *testing.T, env testEnv, defectID string) int {
	t.Helper()
	n, err := env.Engine.Repo.CountHistory(env.Ctx, defectID)
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	return n
}

func TestCreateDefectWritesCreationEvent(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Crack in wall", ProjectID: "P1"})

	if d.Status != domain.StatusNew {
		t.Fatalf("expected NEW, got %s", d.Status)
	}
	if d.Priority != domain.PriorityMedium {
		t.Fatalf("expected default MEDIUM, got %s", d.Priority)
	}
	events, err := env.Engine.Repo.ListHistory(env.Ctx, d.ID, true)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one creation event, got %d", len(events))
	}
	evt := events[0]
	if evt.Field != domain.FieldStatus || evt.FromStatus != nil {
		t.Fatalf("unexpected creation event: %+v", evt)
	}
	if evt.ToStatus == nil || *evt.ToStatus != domain.StatusNew {
		t.Fatalf("expected to_status NEW: %+v", evt)
	}
	if evt.Note != "creation" {
		t.Fatalf("expected creation note, got %q", evt.Note)
	}
}

func TestCreateDefectValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateDefect(env.Ctx, engine.DefectCreateOptions{Title: "  ab ", ProjectID: "P1", ReporterID: "U1"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}

	// Two runes, four bytes. Length counts characters, not bytes.
	_, err = env.Engine.CreateDefect(env.Ctx, engine.DefectCreateOptions{Title: "ив", ProjectID: "P1", ReporterID: "U1"})
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error for two-rune title, got %v", err)
	}
	if _, err = env.Engine.CreateDefect(env.Ctx, engine.DefectCreateOptions{Title: "ивы", ProjectID: "P1", ReporterID: "U1"}); err != nil {
		t.Fatalf("three-rune title should pass: %v", err)
	}

	_, err = env.Engine.CreateDefect(env.Ctx, engine.DefectCreateOptions{Title: "Missing project", ProjectID: "nope", ReporterID: "U1"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}

	_, err = env.Engine.CreateDefect(env.Ctx, engine.DefectCreateOptions{Title: "Wrong stage", ProjectID: "P1", StageID: "S2", ReporterID: "U1"})
	var sme engine.StageMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("expected stage mismatch, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Leaking pipe", ProjectID: "P1"})

	env.tick()
	d2, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusInProgress, "U1", "")
	if err != nil {
		t.Fatalf("to IN_PROGRESS: %v", err)
	}
	if d2.Status != domain.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", d2.Status)
	}
	events, _ := env.Engine.Repo.ListHistory(env.Ctx, d.ID, true)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.FromStatus == nil || *last.FromStatus != domain.StatusNew || last.ToStatus == nil || *last.ToStatus != domain.StatusInProgress {
		t.Fatalf("unexpected transition event: %+v", last)
	}

	env.tick()
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusInReview, "U1", ""); err != nil {
		t.Fatalf("to IN_REVIEW: %v", err)
	}
	env.tick()
	// IN_REVIEW can bounce back to IN_PROGRESS.
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusInProgress, "U1", "rework"); err != nil {
		t.Fatalf("back to IN_PROGRESS: %v", err)
	}
	env.tick()
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusInReview, "U1", ""); err != nil {
		t.Fatalf("to IN_REVIEW again: %v", err)
	}
	env.tick()
	closed, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusClosed, "U1", "fixed")
	if err != nil || closed.Status != domain.StatusClosed {
		t.Fatalf("to CLOSED: %v", err)
	}
}

func TestIllegalTransitionLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Crack in wall", ProjectID: "P1"})

	before := historyCount(t, env, d.ID)
	_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusClosed, "U1", "")
	var te engine.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if te.From != domain.StatusNew || te.To != domain.StatusClosed {
		t.Fatalf("unexpected transition error payload: %+v", te)
	}

	current, err := env.Engine.Repo.GetDefect(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("get defect: %v", err)
	}
	if current.Status != domain.StatusNew {
		t.Fatalf("status changed on rejected transition: %s", current.Status)
	}
	if historyCount(t, env, d.ID) != before {
		t.Fatalf("history grew on rejected transition")
	}
}

func TestConcurrentStatusChangeSurfacesConflict(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Leaking joint", ProjectID: "P1"})

	// The clock hook fires between the policy check and the guarded update.
	// Cancelling the defect there plays the part of a competing writer.
	eng := env.Engine
	base := eng.Now
	raced := false
	eng.Now = func() time.Time {
		if !raced {
			raced = true
			tx, err := eng.DB.BeginTx(env.Ctx, nil)
			if err != nil {
				t.Fatalf("competing tx: %v", err)
			}
			ok, err := eng.Repo.UpdateDefectStatus(env.Ctx, tx, d.ID, domain.StatusNew, domain.StatusCancelled, base().UTC().Format(time.RFC3339))
			if err != nil || !ok {
				t.Fatalf("competing update: ok=%v err=%v", ok, err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("competing commit: %v", err)
			}
		}
		return base()
	}

	_, err := eng.ChangeStatus(env.Ctx, d.ID, domain.StatusInProgress, "U1", "")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if ce.DefectID != d.ID {
		t.Fatalf("unexpected conflict payload: %+v", ce)
	}

	current, err := eng.Repo.GetDefect(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("get defect: %v", err)
	}
	if current.Status != domain.StatusCancelled {
		t.Fatalf("winner's status lost: %s", current.Status)
	}
	// Only the creation row. The losing change wrote no history.
	if n := historyCount(t, env, d.ID); n != 1 {
		t.Fatalf("expected 1 history row, got %d", n)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Paint chipped", ProjectID: "P1"})
	env.tick()
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusCancelled, "U1", "duplicate"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, target := range domain.Statuses {
		_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, target, "U1", "")
		var te engine.TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("expected transition error for CANCELLED -> %s, got %v", target, err)
		}
	}
}

func TestUpdateDefectDiffsTrackedFields(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1"})

	env.tick()
	high := domain.PriorityHigh
	updated, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{Priority: &high}, "U1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Priority != domain.PriorityHigh {
		t.Fatalf("priority not applied: %s", updated.Priority)
	}
	events, _ := env.Engine.Repo.ListHistory(env.Ctx, d.ID, true)
	if len(events) != 2 {
		t.Fatalf("expected creation + one priority event, got %d", len(events))
	}
	evt := events[len(events)-1]
	if evt.Field != domain.FieldPriority || evt.OldValue != "MEDIUM" || evt.NewValue != "HIGH" {
		t.Fatalf("unexpected priority event: %+v", evt)
	}
}

func TestIdenticalPatchWritesNoEvents(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1", Priority: domain.PriorityHigh})

	env.tick()
	high := domain.PriorityHigh
	title := d.Title
	updated, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{Priority: &high, Title: &title}, "U1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt != d.UpdatedAt {
		t.Fatalf("updated_at touched on no-op patch")
	}
	if n := historyCount(t, env, d.ID); n != 1 {
		t.Fatalf("expected only the creation event, got %d", n)
	}
}

func TestUpdateDefectMultipleFields(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1"})

	env.tick()
	title := "Shattered window"
	stage := "S1"
	assignee := "U2"
	if _, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{
		Title:      &title,
		StageID:    &stage,
		AssigneeID: &assignee,
	}, "U1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := historyCount(t, env, d.ID); n != 4 {
		t.Fatalf("expected creation + 3 field events, got %d", n)
	}

	// Clearing assignee is one more tracked change.
	env.tick()
	empty := ""
	if _, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{AssigneeID: &empty}, "U1"); err != nil {
		t.Fatalf("clear assignee: %v", err)
	}
	events, _ := env.Engine.Repo.ListHistory(env.Ctx, d.ID, true)
	last := events[len(events)-1]
	if last.Field != domain.FieldAssignee || last.OldValue != "U2" || last.NewValue != "" {
		t.Fatalf("unexpected clear event: %+v", last)
	}
}

func TestUpdateDefectStageMismatch(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1"})

	stage := "S2"
	_, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{StageID: &stage}, "U1")
	var sme engine.StageMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("expected stage mismatch, got %v", err)
	}
	if n := historyCount(t, env, d.ID); n != 1 {
		t.Fatalf("history grew on rejected patch: %d", n)
	}
}

func TestUpdateDefectTitleCountsRunes(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1"})

	short := " ив "
	_, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{Title: &short}, "U1")
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error for two-rune title, got %v", err)
	}

	ok := "ивы"
	updated, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{Title: &ok}, "U1")
	if err != nil {
		t.Fatalf("three-rune title should pass: %v", err)
	}
	if updated.Title != "ивы" {
		t.Fatalf("title not applied: %q", updated.Title)
	}
}

func TestDueDateOnlyPatchPersistsWithoutHistory(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Broken window", ProjectID: "P1"})

	env.tick()
	due := "2026-03-01T00:00:00Z"
	updated, err := env.Engine.UpdateDefect(env.Ctx, d.ID, engine.DefectPatch{DueAt: &due}, "U1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DueAt == nil || *updated.DueAt != due {
		t.Fatalf("due date not applied: %v", updated.DueAt)
	}
	if n := historyCount(t, env, d.ID); n != 1 {
		t.Fatalf("due date changes are not audited, got %d events", n)
	}
}

func TestReplayReconstructsStatus(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Crack in wall", ProjectID: "P1"})
	for _, target := range []domain.Status{domain.StatusInProgress, domain.StatusInReview, domain.StatusInProgress, domain.StatusInReview, domain.StatusClosed} {
		env.tick()
		if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, target, "U1", ""); err != nil {
			t.Fatalf("to %s: %v", target, err)
		}
	}

	events, err := env.Engine.Repo.ListHistory(env.Ctx, d.ID, true)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	replayed, ok := history.ReplayStatus(events)
	if !ok {
		t.Fatalf("no status events to replay")
	}
	current, _ := env.Engine.Repo.GetDefect(env.Ctx, d.ID)
	if replayed != current.Status {
		t.Fatalf("replay produced %s, store holds %s", replayed, current.Status)
	}
}

func TestDeleteDefectCascades(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env, engine.DefectCreateOptions{Title: "Crack in wall", ProjectID: "P1"})
	env.tick()
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusInProgress, "U1", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := env.Engine.DeleteDefect(env.Ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetDefect(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("defect survived delete: %v", err)
	}
	if n := historyCount(t, env, d.ID); n != 0 {
		t.Fatalf("history survived delete: %d rows", n)
	}
	if err := env.Engine.DeleteDefect(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListDefectsFiltersAndSorts(t *testing.T) {
	env := newTestEnv(t)

	due1 := "2026-02-01T00:00:00Z"
	due2 := "2026-04-01T00:00:00Z"
	a := mustCreate(t, env, engine.DefectCreateOptions{Title: "First", ProjectID: "P1", Priority: domain.PriorityLow, DueAt: due2})
	env.tick()
	b := mustCreate(t, env, engine.DefectCreateOptions{Title: "Second", ProjectID: "P1", Priority: domain.PriorityCritical, DueAt: due1})
	env.tick()
	c := mustCreate(t, env, engine.DefectCreateOptions{Title: "Third", ProjectID: "P2", Priority: domain.PriorityHigh})
	env.tick()
	for _, id := range []string{b.ID, c.ID} {
		if _, err := env.Engine.ChangeStatus(env.Ctx, id, domain.StatusInProgress, "U1", ""); err != nil {
			t.Fatalf("transition: %v", err)
		}
		env.tick()
		if _, err := env.Engine.ChangeStatus(env.Ctx, id, domain.StatusInReview, "U1", ""); err != nil {
			t.Fatalf("transition: %v", err)
		}
		env.tick()
	}

	inReview, err := env.Engine.ListDefects(env.Ctx, repo.DefectFilters{Status: domain.StatusInReview, Sort: "dueAt_asc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inReview) != 2 {
		t.Fatalf("expected 2 IN_REVIEW defects, got %d", len(inReview))
	}
	// b has the due date; c has none and sorts last.
	if inReview[0].ID != b.ID || inReview[1].ID != c.ID {
		t.Fatalf("unexpected dueAt_asc order: %s, %s", inReview[0].Title, inReview[1].Title)
	}

	byPriority, err := env.Engine.ListDefects(env.Ctx, repo.DefectFilters{Sort: "priority_desc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byPriority) != 3 || byPriority[0].ID != b.ID || byPriority[2].ID != a.ID {
		t.Fatalf("unexpected priority_desc order")
	}

	p1Only, err := env.Engine.ListDefects(env.Ctx, repo.DefectFilters{ProjectID: "P1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(p1Only) != 2 {
		t.Fatalf("expected 2 defects in P1, got %d", len(p1Only))
	}
	// Default sort is newest first.
	if p1Only[0].ID != b.ID {
		t.Fatalf("expected newest first by default")
	}

	_, err = env.Engine.ListDefects(env.Ctx, repo.DefectFilters{Status: "BROKEN"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	// Unknown sort keys fall back to createdAt_desc rather than failing.
	fallback, err := env.Engine.ListDefects(env.Ctx, repo.DefectFilters{Sort: "bogus"})
	if err != nil || len(fallback) != 3 {
		t.Fatalf("fallback sort: %v (%d)", err, len(fallback))
	}
	if fallback[0].ID != c.ID {
		t.Fatalf("expected newest first on fallback sort")
	}
}

func TestAllowedTransitionsTable(t *testing.T) {
	cases := map[domain.Status][]domain.Status{
		domain.StatusNew:        {domain.StatusInProgress, domain.StatusCancelled},
		domain.StatusInProgress: {domain.StatusInReview, domain.StatusCancelled},
		domain.StatusInReview:   {domain.StatusClosed, domain.StatusInProgress, domain.StatusCancelled},
		domain.StatusClosed:     {},
		domain.StatusCancelled:  {},
	}
	for from, want := range cases {
		got := engine.AllowedTransitions(from)
		if len(got) != len(want) {
			t.Fatalf("%s: expected %v, got %v", from, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: expected %v, got %v", from, want, got)
			}
		}
		for _, target := range want {
			if !engine.CanTransition(from, target) {
				t.Fatalf("%s -> %s should be allowed", from, target)
			}
		}
	}
}
