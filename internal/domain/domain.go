package domain

// Status is the defect lifecycle state. The set is closed; anything else is
// rejected at the boundary.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusInReview, StatusClosed, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusInReview, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// Priority is the defect severity level.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities from LOW (1) to CRITICAL (4). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// Role is an authenticated user's role. Role gating happens in the HTTP
// layer; the engine records whichever actor it is handed.
type Role string

const (
	RoleManager  Role = "MANAGER"
	RoleEngineer Role = "ENGINEER"
	RoleObserver Role = "OBSERVER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleEngineer, RoleObserver:
		return true
	}
	return false
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role" enum:"MANAGER,ENGINEER,OBSERVER"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Stage belongs to exactly one project; a defect may only reference a stage of
// its own project.
type Stage struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Defect struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	Status      Status   `json:"status" enum:"NEW,IN_PROGRESS,IN_REVIEW,CLOSED,CANCELLED"`
	ProjectID   string   `json:"project_id"`
	StageID     *string  `json:"stage_id,omitempty"`
	ReporterID  string   `json:"reporter_id"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	DueAt       *string  `json:"due_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// History field vocabulary. Every tracked change names one of these.
const (
	FieldStatus      = "status"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPriority    = "priority"
	FieldStage       = "stageId"
	FieldAssignee    = "assigneeId"
)

// HistoryEvent is a write-once audit record of one field change on one
// defect. Rows are never updated or deleted while the defect exists.
type HistoryEvent struct {
	ID         int64   `json:"id"`
	DefectID   string  `json:"defect_id"`
	Field      string  `json:"field"`
	OldValue   string  `json:"old_value,omitempty"`
	NewValue   string  `json:"new_value"`
	FromStatus *Status `json:"from_status,omitempty"`
	ToStatus   *Status `json:"to_status,omitempty"`
	ActorID    string  `json:"actor_id"`
	Note       string  `json:"note,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	DefectID  string `json:"defect_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Attachment struct {
	ID           string `json:"id"`
	DefectID     string `json:"defect_id"`
	UploadedByID string `json:"uploaded_by_id"`
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Path         string `json:"path"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}
