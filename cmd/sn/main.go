package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"snagline/internal/app"
	"snagline/internal/config"
	"snagline/internal/db"
	"snagline/internal/domain"
	"snagline/internal/engine"
	"snagline/internal/history"
	"snagline/internal/migrate"
	"snagline/internal/repo"
	"snagline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sn",
	Short: "Snagline CLI",
	Long: `Snagline tracks construction-site defects through a strict lifecycle.
Every defect moves NEW -> IN_PROGRESS -> IN_REVIEW -> CLOSED (or CANCELLED at
any point before closing), and every change of a tracked field is written to
an immutable history alongside the defect itself. The workspace is the
.snagline directory next to where you run the command; snagline.yml in the
workspace configures the server, auth and seed data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SNAGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user (id or email; defaults to the seed admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(defectCmd())
	rootCmd.AddCommand(reportCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			uploads, err := db.EnsureUploads(workspace)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				admin, err := app.EnsureAdmin(ctx, e.Repo, e.Config)
				if err != nil {
					return err
				}
				if e.Config.Seed.Demo {
					if err := app.SeedDemo(ctx, e, admin); err != nil {
						return err
					}
				}
				secret := e.Config.Auth.JWTSecret
				if v := os.Getenv("SNAGLINE_JWT_SECRET"); v != "" {
					secret = v
				}
				if secret == "" {
					return fmt.Errorf("jwt secret is required; set auth.jwt_secret in snagline.yml or SNAGLINE_JWT_SECRET")
				}
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret: secret,
						TokenTTL:  time.Duration(e.Config.Auth.TokenTTLMinutes) * time.Minute,
					},
					UploadsDir: uploads,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Snagline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user and demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				admin, err := app.EnsureAdmin(ctx, e.Repo, e.Config)
				if err != nil {
					return err
				}
				if err := app.SeedDemo(ctx, e, admin); err != nil {
					return err
				}
				return printJSONOrTable(admin)
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if len(name) < 2 {
				return fmt.Errorf("--name must be at least 2 characters")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p := domain.Project{
					ID:          uuid.New().String(),
					Name:        name,
					Description: desc,
					CreatedAt:   time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Name", "Description", "Created"})
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.Name, p.Description, p.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				stages, err := r.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "stages": stages})
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, args[0])
			})
		},
	}
}

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Manage project stages"}
	stage.AddCommand(stageAddCmd())
	stage.AddCommand(stageListCmd())
	return stage
}

func stageAddCmd() *cobra.Command {
	var projectID, name string
	var position int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a stage to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetProject(ctx, projectID); err != nil {
					return err
				}
				s := domain.Stage{
					ID:        uuid.New().String(),
					ProjectID: projectID,
					Name:      strings.TrimSpace(name),
					Position:  position,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertStage(ctx, s); err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "stage name")
	cmd.Flags().IntVar(&position, "position", 0, "ordering position")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func stageListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stages of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStages(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var name, email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := app.CreateUser(ctx, r, name, email, password, domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEngineer), "role (MANAGER, ENGINEER, OBSERVER)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, u := range items {
					t.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role})
				}
				t.Render()
				return nil
			})
		},
	}
}

func defectCmd() *cobra.Command {
	defect := &cobra.Command{
		Use:   "defect",
		Short: "Manage defects",
		Long: `Defects carry a strict lifecycle: NEW can move to IN_PROGRESS or CANCELLED,
IN_PROGRESS to IN_REVIEW or CANCELLED, IN_REVIEW to CLOSED, back to
IN_PROGRESS or CANCELLED. CLOSED and CANCELLED are final. Field edits and
status moves each leave an immutable history event.`,
	}
	defect.AddCommand(defectCreateCmd())
	defect.AddCommand(defectListCmd())
	defect.AddCommand(defectShowCmd())
	defect.AddCommand(defectUpdateCmd())
	defect.AddCommand(defectStatusCmd())
	defect.AddCommand(defectDeleteCmd())
	defect.AddCommand(defectHistoryCmd())
	return defect
}

func defectCreateCmd() *cobra.Command {
	var opts engine.DefectCreateOptions
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a defect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				opts.Priority = domain.Priority(priority)
				opts.ReporterID = actor.ID
				d, err := e.CreateDefect(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "defect title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (LOW, MEDIUM, HIGH, CRITICAL)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.StageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.DueAt, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func defectListCmd() *cobra.Command {
	var filters repo.DefectFilters
	var status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters.Status = domain.Status(status)
				filters.Priority = domain.Priority(priority)
				items, err := e.ListDefects(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Created"})
				for _, d := range items {
					due := ""
					if d.DueAt != nil {
						due = *d.DueAt
					}
					t.AppendRow(table.Row{d.ID, d.Title, d.Status, d.Priority, due, d.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&filters.ProjectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&filters.AssigneeID, "assignee", "", "filter by assignee id")
	cmd.Flags().StringVar(&filters.Query, "query", "", "free text over title and description")
	cmd.Flags().StringVar(&filters.Sort, "sort", "", "sort key: "+strings.Join(repo.SortKeys, ", "))
	return cmd
}

func defectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a defect with history and allowed transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, events, err := e.GetDefectWithHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"defect":              d,
					"history":             events,
					"allowed_transitions": engine.AllowedTransitions(d.Status),
				})
			})
		},
	}
}

func defectUpdateCmd() *cobra.Command {
	var title, description, priority, stage, assignee, due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update defect fields",
		Long:  "Only flags you pass are applied. Pass an empty value to clear stage, assignee or due date. Status is changed with 'sn defect status'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				var patch engine.DefectPatch
				if cmd.Flags().Changed("title") {
					patch.Title = &title
				}
				if cmd.Flags().Changed("description") {
					patch.Description = &description
				}
				if cmd.Flags().Changed("priority") {
					p := domain.Priority(priority)
					patch.Priority = &p
				}
				if cmd.Flags().Changed("stage") {
					patch.StageID = &stage
				}
				if cmd.Flags().Changed("assignee") {
					patch.AssigneeID = &assignee
				}
				if cmd.Flags().Changed("due") {
					patch.DueAt = &due
				}
				d, err := e.UpdateDefect(ctx, args[0], patch, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&stage, "stage", "", "new stage id (empty clears)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee id (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "new due date (empty clears)")
	return cmd
}

func defectStatusCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "status <id> <target>",
		Short: "Move a defect through the lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.ChangeStatus(ctx, args[0], domain.Status(strings.ToUpper(args[1])), actor.ID, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded with the transition")
	return cmd
}

func defectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a defect and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDefect(ctx, args[0])
			})
		},
	}
}

func defectHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show a defect's change timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetDefect(ctx, args[0]); err != nil {
					return err
				}
				events, err := e.Repo.ListHistory(ctx, args[0], false)
				if err != nil {
					return err
				}
				entries := history.Timeline(events)
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"At", "Actor", "Field", "Change", "Note"})
				for _, entry := range entries {
					t.AppendRow(table.Row{entry.At, entry.ActorID, entry.Field, entry.Change, entry.Note})
				}
				t.Render()
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Reports and exports"}
	report.AddCommand(reportSummaryCmd())
	report.AddCommand(reportExportCmd())
	return report
}

func reportSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Defect counts by status, priority and project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				byStatus, err := r.CountDefectsByStatus(ctx)
				if err != nil {
					return err
				}
				byPriority, err := r.CountDefectsByPriority(ctx)
				if err != nil {
					return err
				}
				byProject, err := r.CountDefectsByProject(ctx)
				if err != nil {
					return err
				}
				total := 0
				for _, n := range byStatus {
					total += n
				}
				out := map[string]any{
					"total":       total,
					"by_status":   byStatus,
					"by_priority": byPriority,
					"by_project":  byProject,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Defects: %d\n", total)
				fmt.Println("By status:")
				for _, s := range domain.Statuses {
					if n, ok := byStatus[string(s)]; ok {
						fmt.Printf("  %s: %d\n", s, n)
					}
				}
				fmt.Println("By priority:")
				for _, p := range domain.Priorities {
					if n, ok := byPriority[string(p)]; ok {
						fmt.Printf("  %s: %d\n", p, n)
					}
				}
				return nil
			})
		},
	}
}

func reportExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all defects as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.ExportDefects(ctx)
				if err != nil {
					return err
				}
				csv := server.RenderExportCSV(rows)
				if out == "" {
					fmt.Println(csv)
					return nil
				}
				if err := os.WriteFile(out, []byte(csv+"\n"), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %d defects to %s\n", len(rows), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write CSV to a file instead of stdout")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// resolveActor maps the --actor flag (user id or email) to a user row. With
// no flag the seed admin is used, created on first need.
func resolveActor(ctx context.Context, e engine.Engine) (domain.User, error) {
	key := strings.TrimSpace(viper.GetString("actor"))
	if key == "" {
		return app.EnsureAdmin(ctx, e.Repo, e.Config)
	}
	if u, err := e.Repo.GetUser(ctx, key); err == nil {
		return u, nil
	}
	u, err := e.Repo.GetUserByEmail(ctx, key)
	if err != nil {
		return domain.User{}, fmt.Errorf("unknown actor %q: %w", key, err)
	}
	return u, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
