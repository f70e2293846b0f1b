package server

import (
	"snagline/internal/domain"
	"snagline/internal/history"
	"snagline/internal/repo"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" minLength:"2"`
	Description string `json:"description,omitempty"`
}

type CreateStageRequest struct {
	Name     string `json:"name" minLength:"1"`
	Position int    `json:"position,omitempty"`
}

type CreateUserRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	Role     string `json:"role" enum:"MANAGER,ENGINEER,OBSERVER"`
}

type CreateDefectRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	ProjectID   string  `json:"project_id"`
	StageID     *string `json:"stage_id,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueAt       *string `json:"due_at,omitempty" format:"date-time"`
}

// UpdateDefectRequest is a partial update. Absent fields are left alone; an
// explicit empty string clears stage, assignee or due date.
type UpdateDefectRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	StageID     *string `json:"stage_id,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueAt       *string `json:"due_at,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" enum:"NEW,IN_PROGRESS,IN_REVIEW,CLOSED,CANCELLED"`
	Note   string `json:"note,omitempty"`
}

type CreateCommentRequest struct {
	Content string `json:"content" minLength:"1"`
}

// Response payloads

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type DefectDetailResponse struct {
	Defect  domain.Defect         `json:"defect"`
	History []domain.HistoryEvent `json:"history"`
	Allowed []domain.Status       `json:"allowed_transitions"`
}

type TimelineResponse struct {
	DefectID string                  `json:"defect_id"`
	Entries  []history.TimelineEntry `json:"entries"`
}

type SummaryResponse struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	ByProject  map[string]int `json:"by_project"`
}

func exportHeader() []string {
	return []string{"id", "title", "status", "priority", "project", "stage", "assignee", "reporter", "created_at"}
}

func exportValues(row repo.ExportRow) []string {
	return []string{row.ID, row.Title, row.Status, row.Priority, row.Project, row.Stage, row.Assignee, row.Reporter, row.CreatedAt}
}
