package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"snagline/internal/config"
	"snagline/internal/domain"
	"snagline/internal/engine"
	"snagline/internal/repo"
)

// EnsureAdmin makes sure the configured admin MANAGER exists, creating it
// with the seed password when missing. Returns the admin user either way.
func EnsureAdmin(ctx context.Context, r repo.Repo, cfg *config.Config) (domain.User, error) {
	email := cfg.Seed.Admin.Email
	if email == "" {
		return domain.User{}, fmt.Errorf("seed.admin.email is not configured")
	}
	u, err := r.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	password := cfg.Seed.Admin.Password
	if password == "" {
		return domain.User{}, fmt.Errorf("admin user %s missing and seed.admin.password not set", email)
	}
	return CreateUser(ctx, r, cfg.Seed.Admin.Name, email, password, domain.RoleManager)
}

// CreateUser hashes the password and inserts the user.
func CreateUser(ctx context.Context, r repo.Repo, name, email, password string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("unknown role %s", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CheckPassword verifies a login attempt against the stored hash.
func CheckPassword(u domain.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SeedDemo inserts a demo project, stage and defect so a fresh workspace has
// something to look at. Idempotent by project name.
func SeedDemo(ctx context.Context, e engine.Engine, admin domain.User) error {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.Name == "Site No. 1" {
			return nil
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	project := domain.Project{
		ID:          uuid.New().String(),
		Name:        "Site No. 1",
		Description: "Demo construction site",
		CreatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, project); err != nil {
		return err
	}
	stage := domain.Stage{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Name:      "Rough work",
		Position:  1,
		CreatedAt: now,
	}
	if err := e.Repo.InsertStage(ctx, stage); err != nil {
		return err
	}
	_, err = e.CreateDefect(ctx, engine.DefectCreateOptions{
		Title:       "Crack in wall",
		Description: "Vertical crack found in a third floor wall",
		Priority:    domain.PriorityHigh,
		ProjectID:   project.ID,
		StageID:     stage.ID,
		ReporterID:  admin.ID,
	})
	return err
}
