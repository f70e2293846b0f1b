package snaglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Snagline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Defect mirrors the API defect model.
type Defect struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	ProjectID   string  `json:"project_id"`
	StageID     *string `json:"stage_id,omitempty"`
	ReporterID  string  `json:"reporter_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueAt       *string `json:"due_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// HistoryEvent is one immutable audit record of a defect change.
type HistoryEvent struct {
	ID         int64   `json:"id"`
	DefectID   string  `json:"defect_id"`
	Field      string  `json:"field"`
	OldValue   string  `json:"old_value,omitempty"`
	NewValue   string  `json:"new_value"`
	FromStatus *string `json:"from_status,omitempty"`
	ToStatus   *string `json:"to_status,omitempty"`
	ActorID    string  `json:"actor_id"`
	Note       string  `json:"note,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// DefectDetail is a defect with its history, newest first.
type DefectDetail struct {
	Defect  Defect         `json:"defect"`
	History []HistoryEvent `json:"history"`
	Allowed []string       `json:"allowed_transitions"`
}

// Project mirrors the API project model.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// User mirrors the API user model.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DefectFilters narrows List queries; zero values are skipped.
type DefectFilters struct {
	Status     string
	Priority   string
	ProjectID  string
	AssigneeID string
	Query      string
	Sort       string
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateDefect registers a defect in status NEW.
func (c *Client) CreateDefect(ctx context.Context, title, projectID string, opts map[string]any) (Defect, error) {
	body := map[string]any{
		"title":      title,
		"project_id": projectID,
	}
	for k, v := range opts {
		body[k] = v
	}
	var resp Defect
	err := c.do(ctx, http.MethodPost, "v1/defects", body, &resp)
	return resp, err
}

// ListDefects returns defects matching the filters.
func (c *Client) ListDefects(ctx context.Context, f DefectFilters) ([]Defect, error) {
	q := url.Values{}
	set := func(key, v string) {
		if v != "" {
			q.Set(key, v)
		}
	}
	set("status", f.Status)
	set("priority", f.Priority)
	set("project_id", f.ProjectID)
	set("assignee_id", f.AssigneeID)
	set("q", f.Query)
	set("sort", f.Sort)
	endpoint := "v1/defects"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Defect
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetDefect fetches a defect with its history and allowed transitions.
func (c *Client) GetDefect(ctx context.Context, id string) (DefectDetail, error) {
	var resp DefectDetail
	err := c.do(ctx, http.MethodGet, "v1/defects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateDefect applies a partial field update.
func (c *Client) UpdateDefect(ctx context.Context, id string, patch map[string]any) (Defect, error) {
	var resp Defect
	err := c.do(ctx, http.MethodPatch, "v1/defects/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// ChangeStatus moves a defect through the lifecycle.
func (c *Client) ChangeStatus(ctx context.Context, id, target, note string) (Defect, error) {
	body := map[string]any{"status": target}
	if note != "" {
		body["note"] = note
	}
	var resp Defect
	err := c.do(ctx, http.MethodPost, "v1/defects/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// DeleteDefect removes a defect and its history.
func (c *Client) DeleteDefect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/defects/"+url.PathEscape(id), nil, nil)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", map[string]any{
		"name":        name,
		"description": description,
	}, &resp)
	return resp, err
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v1/projects", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
