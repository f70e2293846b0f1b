package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"snagline/internal/app"
	"snagline/internal/domain"
	"snagline/internal/engine"
	"snagline/internal/history"
	"snagline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine     engine.Engine
	BasePath   string
	Auth       AuthConfig
	UploadsDir string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot move defect from CLOSED to IN_PROGRESS"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every failure responds with.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Snagline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request errors respond 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Snagline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg)
	registerUsers(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerDefects(group, cfg.Engine)
	registerComments(group, cfg.Engine)
	registerAttachments(router, basePath, cfg)
	registerReports(router, group, basePath, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps typed engine errors to the wire envelope. Anything not
// recognized responds 500 without leaking storage internals.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	var sme engine.StageMismatchError
	if errors.As(err, &sme) {
		return newAPIError(http.StatusUnprocessableEntity, "stage_project_mismatch", err.Error(), map[string]any{"stage_id": sme.StageID, "project_id": sme.ProjectID})
	}
	var te engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"defect_id": ce.DefectID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Snagline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := e.Repo.GetUserByEmail(ctx, input.Body.Email)
		if err != nil || !app.CheckPassword(u, input.Body.Password) {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		token, err := issueToken(u, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: u}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, domain.RoleManager); authErr != nil {
			return nil, authErr
		}
		u, err := app.CreateUser(ctx, e.Repo, input.Body.Name, input.Body.Email, input.Body.Password, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, domain.RoleManager); authErr != nil {
			return nil, authErr
		}
		name := strings.TrimSpace(input.Body.Name)
		if len(name) < 2 {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", "name must be at least 2 characters", map[string]any{"field": "name"})
		}
		p := domain.Project{
			ID:          uuid.New().String(),
			Name:        name,
			Description: input.Body.Description,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if _, authErr := requireRole(ctx, domain.RoleManager); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/stages",
		Summary:       "Create stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateStageRequest `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, domain.RoleManager); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		name := strings.TrimSpace(input.Body.Name)
		if name == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", "name is required", map[string]any{"field": "name"})
		}
		s := domain.Stage{
			ID:        uuid.New().String(),
			ProjectID: input.ProjectID,
			Name:      name,
			Position:  input.Body.Position,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertStage(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages",
		Summary:     "List stages",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Stage `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStages(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Stage `json:"body"`
		}{Body: items}, nil
	})
}

func registerDefects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-defect",
		Method:        http.MethodPost,
		Path:          "/defects",
		Summary:       "Register defect",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDefectRequest `json:"body"`
	}) (*struct {
		Body domain.Defect `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleManager, domain.RoleEngineer)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.DefectCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    domain.Priority(input.Body.Priority),
			ProjectID:   input.Body.ProjectID,
			ReporterID:  p.UserID,
		}
		if input.Body.StageID != nil {
			opts.StageID = *input.Body.StageID
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		if input.Body.DueAt != nil {
			opts.DueAt = *input.Body.DueAt
		}
		d, err := e.CreateDefect(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Defect `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-defects",
		Method:      http.MethodGet,
		Path:        "/defects",
		Summary:     "List defects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Priority   string `query:"priority"`
		ProjectID  string `query:"project_id"`
		AssigneeID string `query:"assignee_id"`
		Query      string `query:"q"`
		Sort       string `query:"sort"`
	}) (*struct {
		Body []domain.Defect `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDefects(ctx, repo.DefectFilters{
			Status:     domain.Status(input.Status),
			Priority:   domain.Priority(input.Priority),
			ProjectID:  input.ProjectID,
			AssigneeID: input.AssigneeID,
			Query:      input.Query,
			Sort:       input.Sort,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Defect{}
		}
		return &struct {
			Body []domain.Defect `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-defect",
		Method:      http.MethodGet,
		Path:        "/defects/{defect_id}",
		Summary:     "Get defect with history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string `path:"defect_id"`
	}) (*struct {
		Body DefectDetailResponse `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		d, events, err := e.GetDefectWithHistory(ctx, input.DefectID)
		if err != nil {
			return nil, handleError(err)
		}
		if events == nil {
			events = []domain.HistoryEvent{}
		}
		return &struct {
			Body DefectDetailResponse `json:"body"`
		}{Body: DefectDetailResponse{
			Defect:  d,
			History: events,
			Allowed: engine.AllowedTransitions(d.Status),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-defect",
		Method:      http.MethodPatch,
		Path:        "/defects/{defect_id}",
		Summary:     "Update defect fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		DefectID string              `path:"defect_id"`
		Body     UpdateDefectRequest `json:"body"`
	}) (*struct {
		Body domain.Defect `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleManager)
		if authErr != nil {
			return nil, authErr
		}
		patch := engine.DefectPatch{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			StageID:     input.Body.StageID,
			AssigneeID:  input.Body.AssigneeID,
			DueAt:       input.Body.DueAt,
		}
		if input.Body.Priority != nil {
			pr := domain.Priority(*input.Body.Priority)
			patch.Priority = &pr
		}
		d, err := e.UpdateDefect(ctx, input.DefectID, patch, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Defect `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-defect-status",
		Method:      http.MethodPost,
		Path:        "/defects/{defect_id}/status",
		Summary:     "Move defect through the lifecycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		DefectID string              `path:"defect_id"`
		Body     ChangeStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Defect `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleManager, domain.RoleEngineer)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ChangeStatus(ctx, input.DefectID, domain.Status(input.Body.Status), p.UserID, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Defect `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-defect",
		Method:      http.MethodDelete,
		Path:        "/defects/{defect_id}",
		Summary:     "Delete defect",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string `path:"defect_id"`
	}) (*struct{}, error) {
		if _, authErr := requireRole(ctx, domain.RoleManager); authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDefect(ctx, input.DefectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "defect-timeline",
		Method:      http.MethodGet,
		Path:        "/defects/{defect_id}/history",
		Summary:     "Defect change timeline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string `path:"defect_id"`
	}) (*struct {
		Body TimelineResponse `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetDefect(ctx, input.DefectID); err != nil {
			return nil, handleError(err)
		}
		events, err := e.Repo.ListHistory(ctx, input.DefectID, false)
		if err != nil {
			return nil, handleError(err)
		}
		entries := history.Timeline(events)
		if entries == nil {
			entries = []history.TimelineEntry{}
		}
		return &struct {
			Body TimelineResponse `json:"body"`
		}{Body: TimelineResponse{DefectID: input.DefectID, Entries: entries}}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/defects/{defect_id}/comments",
		Summary:       "Comment on a defect",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string               `path:"defect_id"`
		Body     CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleManager, domain.RoleEngineer)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Content) == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", "content is required", map[string]any{"field": "content"})
		}
		if _, err := e.Repo.GetDefect(ctx, input.DefectID); err != nil {
			return nil, handleError(err)
		}
		c := domain.Comment{
			ID:        uuid.New().String(),
			DefectID:  input.DefectID,
			AuthorID:  p.UserID,
			Content:   input.Body.Content,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertComment(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/defects/{defect_id}/comments",
		Summary:     "List comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string `path:"defect_id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetDefect(ctx, input.DefectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListComments(ctx, input.DefectID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Comment{}
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: items}, nil
	})
}

// Attachments move raw bytes, so they bypass huma and register straight on
// the router. The auth middleware still runs for these paths.
func registerAttachments(r chi.Router, basePath string, cfg Config) {
	e := cfg.Engine
	uploads := cfg.UploadsDir

	r.Post(path.Join(basePath, "defects/{defect_id}/attachments"), func(w http.ResponseWriter, req *http.Request) {
		p, ok := principalFromContext(req.Context())
		if !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		if p.Role != domain.RoleManager && p.Role != domain.RoleEngineer {
			respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden", "role "+string(p.Role)+" may not upload attachments", nil))
			return
		}
		defectID := chi.URLParam(req, "defect_id")
		if _, err := e.Repo.GetDefect(req.Context(), defectID); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		if uploads == "" {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "uploads directory not configured", nil))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart field file is required", nil))
			return
		}
		defer file.Close()

		storedName := uuid.New().String() + filepath.Ext(header.Filename)
		dst := filepath.Join(uploads, storedName)
		out, err := os.Create(dst)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
			return
		}
		size, err := io.Copy(out, file)
		out.Close()
		if err != nil {
			os.Remove(dst)
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
			return
		}
		a := domain.Attachment{
			ID:           uuid.New().String(),
			DefectID:     defectID,
			UploadedByID: p.UserID,
			OriginalName: header.Filename,
			StoredName:   storedName,
			MimeType:     header.Header.Get("Content-Type"),
			Size:         size,
			Path:         dst,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAttachment(req.Context(), a); err != nil {
			os.Remove(dst)
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(a)
	})

	r.Get(path.Join(basePath, "defects/{defect_id}/attachments"), func(w http.ResponseWriter, req *http.Request) {
		if _, ok := principalFromContext(req.Context()); !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		defectID := chi.URLParam(req, "defect_id")
		if _, err := e.Repo.GetDefect(req.Context(), defectID); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		items, err := e.Repo.ListAttachments(req.Context(), defectID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		if items == nil {
			items = []domain.Attachment{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	})
}

func registerReports(r chi.Router, api huma.API, basePath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "report-summary",
		Method:      http.MethodGet,
		Path:        "/reports/summary",
		Summary:     "Defect counts by status, priority and project",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		byStatus, err := e.Repo.CountDefectsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		byPriority, err := e.Repo.CountDefectsByPriority(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		byProject, err := e.Repo.CountDefectsByProject(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		total := 0
		for _, n := range byStatus {
			total += n
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{
			Total:      total,
			ByStatus:   byStatus,
			ByPriority: byPriority,
			ByProject:  byProject,
		}}, nil
	})

	// CSV export streams text, so it registers straight on the router.
	r.Get(path.Join(basePath, "reports/export.csv"), func(w http.ResponseWriter, req *http.Request) {
		p, ok := principalFromContext(req.Context())
		if !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		if p.Role != domain.RoleManager {
			respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden", "role "+string(p.Role)+" may not export reports", nil))
			return
		}
		rows, err := e.Repo.ExportDefects(req.Context())
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="defects.csv"`)
		io.WriteString(w, RenderExportCSV(rows))
	})
}

// RenderExportCSV renders the defect export as CSV text. The CLI reuses it
// for `sn report export`.
func RenderExportCSV(rows []repo.ExportRow) string {
	t := table.NewWriter()
	header := table.Row{}
	for _, h := range exportHeader() {
		header = append(header, h)
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := table.Row{}
		for _, v := range exportValues(row) {
			r = append(r, v)
		}
		t.AppendRow(r)
	}
	return t.RenderCSV()
}
