package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"snagline/internal/config"
	"snagline/internal/domain"
	"snagline/internal/history"
	"snagline/internal/repo"
)

// Engine orchestrates defect mutations. Every operation runs as one SQL
// transaction: the snapshot read, the defect write and the history rows
// commit or roll back together.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const minTitleLen = 3

// noteCreation marks the history row written alongside a new defect.
const noteCreation = "creation"

// trackedField pairs a history field name with its accessor. The diff in
// UpdateDefect walks this table, so adding a tracked field here is the only
// step needed to audit it.
type trackedField struct {
	name string
	get  func(d domain.Defect) string
}

var trackedFields = []trackedField{
	{domain.FieldTitle, func(d domain.Defect) string { return d.Title }},
	{domain.FieldDescription, func(d domain.Defect) string { return d.Description }},
	{domain.FieldPriority, func(d domain.Defect) string { return string(d.Priority) }},
	{domain.FieldStage, func(d domain.Defect) string { return deref(d.StageID) }},
	{domain.FieldAssignee, func(d domain.Defect) string { return deref(d.AssigneeID) }},
}

// DefectCreateOptions are parameters for registering a defect. Empty
// optional fields mean absent.
type DefectCreateOptions struct {
	ID          string
	Title       string
	Description string
	Priority    domain.Priority
	ProjectID   string
	StageID     string
	AssigneeID  string
	DueAt       string
	ReporterID  string
}

// CreateDefect registers a defect in status NEW and writes the creation
// history row in the same transaction.
func (e Engine) CreateDefect(ctx context.Context, opts DefectCreateOptions) (domain.Defect, error) {
	title := strings.TrimSpace(opts.Title)
	if utf8.RuneCountInString(title) < minTitleLen {
		return domain.Defect{}, ValidationError{Field: "title", Reason: "must be at least 3 characters"}
	}
	if opts.ProjectID == "" {
		return domain.Defect{}, ValidationError{Field: "project_id", Reason: "is required"}
	}
	if opts.ReporterID == "" {
		return domain.Defect{}, ValidationError{Field: "reporter_id", Reason: "is required"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = e.defaultPriority()
	}
	if !priority.Valid() {
		return domain.Defect{}, ValidationError{Field: "priority", Reason: "is not a known priority"}
	}
	dueAt, err := normalizeDueAt(opts.DueAt)
	if err != nil {
		return domain.Defect{}, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Defect{}, err
	}
	if opts.StageID != "" {
		stage, err := e.Repo.GetStage(ctx, opts.StageID)
		if err != nil {
			return domain.Defect{}, err
		}
		if stage.ProjectID != opts.ProjectID {
			return domain.Defect{}, StageMismatchError{StageID: opts.StageID, ProjectID: opts.ProjectID}
		}
	}
	if opts.AssigneeID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.AssigneeID); err != nil {
			return domain.Defect{}, err
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.Defect{
		ID:          id,
		Title:       title,
		Description: opts.Description,
		Priority:    priority,
		Status:      domain.StatusNew,
		ProjectID:   opts.ProjectID,
		StageID:     optionalString(opts.StageID),
		ReporterID:  opts.ReporterID,
		AssigneeID:  optionalString(opts.AssigneeID),
		DueAt:       dueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Defect{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertDefect(ctx, tx, d); err != nil {
		return domain.Defect{}, err
	}
	toStatus := domain.StatusNew
	if err := e.History.Append(ctx, tx, history.Record{
		DefectID: d.ID,
		Field:    domain.FieldStatus,
		NewValue: string(domain.StatusNew),
		ToStatus: &toStatus,
		ActorID:  opts.ReporterID,
		Note:     noteCreation,
	}); err != nil {
		return domain.Defect{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Defect{}, err
	}
	return d, nil
}

// DefectPatch is a partial update. Nil means leave the field alone; a
// pointer to the empty string clears an optional reference. Status is never
// part of a patch.
type DefectPatch struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	StageID     *string
	AssigneeID  *string
	DueAt       *string
}

// UpdateDefect applies a patch and appends one history row per tracked field
// whose value actually changed. The diff runs against the snapshot read
// inside the same transaction, so an identical patch writes nothing.
func (e Engine) UpdateDefect(ctx context.Context, defectID string, patch DefectPatch, actorID string) (domain.Defect, error) {
	if actorID == "" {
		return domain.Defect{}, ValidationError{Field: "actor_id", Reason: "is required"}
	}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if utf8.RuneCountInString(t) < minTitleLen {
			return domain.Defect{}, ValidationError{Field: "title", Reason: "must be at least 3 characters"}
		}
		patch.Title = &t
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return domain.Defect{}, ValidationError{Field: "priority", Reason: "is not a known priority"}
	}
	if patch.DueAt != nil && *patch.DueAt != "" {
		if _, err := time.Parse(time.RFC3339, *patch.DueAt); err != nil {
			return domain.Defect{}, ValidationError{Field: "due_at", Reason: "must be RFC3339"}
		}
	}
	if patch.AssigneeID != nil && *patch.AssigneeID != "" {
		if _, err := e.Repo.GetUser(ctx, *patch.AssigneeID); err != nil {
			return domain.Defect{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Defect{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetDefectTx(ctx, tx, defectID)
	if err != nil {
		return domain.Defect{}, err
	}
	after := before
	if patch.Title != nil {
		after.Title = *patch.Title
	}
	if patch.Description != nil {
		after.Description = *patch.Description
	}
	if patch.Priority != nil {
		after.Priority = *patch.Priority
	}
	if patch.StageID != nil {
		if *patch.StageID == "" {
			after.StageID = nil
		} else {
			stage, err := e.Repo.GetStage(ctx, *patch.StageID)
			if err != nil {
				return domain.Defect{}, err
			}
			if stage.ProjectID != before.ProjectID {
				return domain.Defect{}, StageMismatchError{StageID: *patch.StageID, ProjectID: before.ProjectID}
			}
			after.StageID = patch.StageID
		}
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == "" {
			after.AssigneeID = nil
		} else {
			after.AssigneeID = patch.AssigneeID
		}
	}
	if patch.DueAt != nil {
		if *patch.DueAt == "" {
			after.DueAt = nil
		} else {
			after.DueAt = patch.DueAt
		}
	}

	var records []history.Record
	for _, f := range trackedFields {
		oldValue, newValue := f.get(before), f.get(after)
		if oldValue == newValue {
			continue
		}
		records = append(records, history.Record{
			DefectID: before.ID,
			Field:    f.name,
			OldValue: oldValue,
			NewValue: newValue,
			ActorID:  actorID,
		})
	}
	dueChanged := deref(before.DueAt) != deref(after.DueAt)
	if len(records) == 0 && !dueChanged {
		// Nothing changed; do not touch the row at all.
		return before, nil
	}

	after.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDefectFields(ctx, tx, after); err != nil {
		return domain.Defect{}, err
	}
	for _, rec := range records {
		if err := e.History.Append(ctx, tx, rec); err != nil {
			return domain.Defect{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Defect{}, err
	}
	return after, nil
}

// ChangeStatus moves the defect through the lifecycle table. An illegal
// target fails with TransitionError and writes nothing; a lost race against
// a concurrent move fails with ConflictError.
func (e Engine) ChangeStatus(ctx context.Context, defectID string, target domain.Status, actorID, note string) (domain.Defect, error) {
	if !target.Valid() {
		return domain.Defect{}, ValidationError{Field: "status", Reason: "is not a known status"}
	}
	if actorID == "" {
		return domain.Defect{}, ValidationError{Field: "actor_id", Reason: "is required"}
	}
	d, err := e.Repo.GetDefect(ctx, defectID)
	if err != nil {
		return domain.Defect{}, err
	}
	if err := ensureTransition(d.Status, target); err != nil {
		return domain.Defect{}, err
	}
	from := d.Status
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Defect{}, err
	}
	defer tx.Rollback()

	// The snapshot above is only for policy checks. The status guard in the
	// UPDATE is what detects a competing writer: zero rows means the defect
	// moved since the read, and nothing is written.
	ok, err := e.Repo.UpdateDefectStatus(ctx, tx, d.ID, from, target, now)
	if err != nil {
		return domain.Defect{}, err
	}
	if !ok {
		return domain.Defect{}, ConflictError{DefectID: d.ID}
	}
	if err := e.History.Append(ctx, tx, history.Record{
		DefectID:   d.ID,
		Field:      domain.FieldStatus,
		OldValue:   string(from),
		NewValue:   string(target),
		FromStatus: &from,
		ToStatus:   &target,
		ActorID:    actorID,
		Note:       note,
	}); err != nil {
		return domain.Defect{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Defect{}, err
	}
	d.Status = target
	d.UpdatedAt = now
	return d, nil
}

// DeleteDefect is the administrative hard delete. Comments, attachments and
// history cascade with the row; no audit trail survives the defect.
func (e Engine) DeleteDefect(ctx context.Context, defectID string) error {
	if _, err := e.Repo.GetDefect(ctx, defectID); err != nil {
		return err
	}
	return e.Repo.DeleteDefect(ctx, defectID)
}

// GetDefectWithHistory returns a defect together with its full history,
// newest event first.
func (e Engine) GetDefectWithHistory(ctx context.Context, defectID string) (domain.Defect, []domain.HistoryEvent, error) {
	d, err := e.Repo.GetDefect(ctx, defectID)
	if err != nil {
		return domain.Defect{}, nil, err
	}
	events, err := e.Repo.ListHistory(ctx, defectID, false)
	if err != nil {
		return domain.Defect{}, nil, err
	}
	return d, events, nil
}

// ListDefects answers filtered, sorted list queries. Read-only.
func (e Engine) ListDefects(ctx context.Context, f repo.DefectFilters) ([]domain.Defect, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ValidationError{Field: "status", Reason: "is not a known status"}
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, ValidationError{Field: "priority", Reason: "is not a known priority"}
	}
	return e.Repo.ListDefects(ctx, f)
}

func (e Engine) defaultPriority() domain.Priority {
	if e.Config != nil {
		if p := e.Config.DefaultPriority(); p.Valid() {
			return p
		}
	}
	return domain.PriorityMedium
}

func normalizeDueAt(v string) (*string, error) {
	if v == "" {
		return nil, nil
	}
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return nil, ValidationError{Field: "due_at", Reason: "must be RFC3339"}
	}
	return &v, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
