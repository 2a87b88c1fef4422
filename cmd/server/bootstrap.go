package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/momofin/momofin-backend/internal/auth"
	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/db"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/db/repositories"
)

// bootstrapOptions describes the first admin of an organization.
type bootstrapOptions struct {
	Organization string
	Username     string
	Password     string
	Email        string
	Name         string
	Position     string
}

type orgStore interface {
	GetByName(ctx context.Context, name string) (*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) error
}

type adminStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByOrganizationAndUsername(ctx context.Context, organizationID, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

func parseBootstrapFlags(args []string) (*bootstrapOptions, error) {
	opts := &bootstrapOptions{}

	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Organization, "org", "", "organization name")
	fs.StringVar(&opts.Username, "username", "", "admin username")
	fs.StringVar(&opts.Password, "password", "", "admin password")
	fs.StringVar(&opts.Email, "email", "", "admin email")
	fs.StringVar(&opts.Name, "name", "", "admin display name")
	fs.StringVar(&opts.Position, "position", "Administrator", "admin position")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	required := []struct{ flag, value string }{
		{"org", opts.Organization},
		{"username", opts.Username},
		{"password", opts.Password},
		{"email", opts.Email},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, "--"+r.flag)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("usage: bootstrap --org NAME --username U --password P --email E [--name N --position P] (missing %s)",
			strings.Join(missing, ", "))
	}
	if opts.Name == "" {
		opts.Name = opts.Username
	}
	return opts, nil
}

func runBootstrap(cfg *config.Config, opts *bootstrapOptions) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	user, created, err := bootstrapAdmin(context.Background(),
		repositories.NewOrganizationRepository(database),
		repositories.NewUserRepository(database),
		opts, cfg.Auth.BcryptCost,
	)
	if err != nil {
		return err
	}

	if created {
		log.Printf("Created organization %s", user.OrganizationName())
	}
	log.Printf("Created admin %s (%s) in organization %s", user.Username, user.ID, user.OrganizationName())
	return nil
}

// bootstrapAdmin creates the organization when it does not exist yet and adds
// an admin user to it. It reports whether the organization was created.
func bootstrapAdmin(ctx context.Context, orgs orgStore, users adminStore, opts *bootstrapOptions, bcryptCost int) (*models.User, bool, error) {
	org, err := orgs.GetByName(ctx, opts.Organization)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up organization: %w", err)
	}

	created := false
	if org == nil {
		org = &models.Organization{Name: opts.Organization}
		if err := orgs.Create(ctx, org); err != nil {
			return nil, false, fmt.Errorf("failed to create organization: %w", err)
		}
		created = true
	}

	existing, err := users.GetByEmail(ctx, opts.Email)
	if err != nil {
		return nil, created, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, created, errors.New("email " + opts.Email + " is already in use")
	}
	existing, err = users.GetByOrganizationAndUsername(ctx, org.ID, opts.Username)
	if err != nil {
		return nil, created, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, created, errors.New("username " + opts.Username + " is already in use")
	}

	hash, err := auth.HashPassword(opts.Password, bcryptCost)
	if err != nil {
		return nil, created, err
	}

	user := &models.User{
		OrganizationID: org.ID,
		Organization:   org,
		Username:       opts.Username,
		Email:          opts.Email,
		PasswordHash:   hash,
		Name:           opts.Name,
		Position:       opts.Position,
		Role:           string(auth.RoleAdmin),
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, created, fmt.Errorf("failed to create admin: %w", err)
	}
	return user, created, nil
}
