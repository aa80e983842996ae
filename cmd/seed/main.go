package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository/postgres"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/database"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		password    = flag.String("password", getEnv("SEED_PASSWORD", ""), "Password for every seeded user (or SEED_PASSWORD)")
		domain      = flag.String("domain", "example.com", "Email domain for seeded users")
		rolesFlag   = flag.String("roles", "", "Comma separated roles to seed (default: all)")
		skipMigrate = flag.Bool("skip-migrate", false, "Do not apply migrations before seeding")
		statsOnly   = flag.Bool("stats", false, "Only show user counts per role")
	)
	flag.Parse()

	if err := run(*password, *domain, *rolesFlag, *skipMigrate, *statsOnly); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(password, domain, rolesFlag string, skipMigrate, statsOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	roles, err := parseRoles(rolesFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if !skipMigrate && !statsOnly {
		if err := database.RunMigrations(cfg.DatabaseURL(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.NewPostgresDB(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	users := postgres.NewUserRepository(db)

	if statsOnly {
		return printStats(ctx, users, roles)
	}

	if password == "" {
		return errors.New("a password is required: pass -password or set SEED_PASSWORD")
	}

	authService := services.NewAuthService(
		users,
		auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL),
		nil,
		log,
	)

	result, err := seedUsers(ctx, authService, roles, password, domain)
	if err != nil {
		return err
	}

	log.Info("Seeding complete",
		zap.Strings("created", result.Created),
		zap.Strings("skipped", result.Skipped),
	)
	return nil
}

// UserCreator provisions a user with an explicit role
type UserCreator interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest, role models.Role) (*models.User, error)
}

// SeedResult lists the usernames created and those that already existed
type SeedResult struct {
	Created []string
	Skipped []string
}

// seedUsers creates one user per role, named after the role. Existing users
// are left untouched so the command can be re-run safely.
func seedUsers(ctx context.Context, creator UserCreator, roles []models.Role, password, domain string) (*SeedResult, error) {
	result := &SeedResult{}
	for _, role := range roles {
		username := strings.ReplaceAll(string(role), "_", "")
		first := roleTitle(role)
		_, err := creator.CreateUser(ctx, &models.RegisterRequest{
			Username:  username,
			Email:     fmt.Sprintf("%s@%s", username, domain),
			Password:  password,
			FirstName: &first,
		}, role)
		switch {
		case errors.Is(err, services.ErrUserExists):
			result.Skipped = append(result.Skipped, username)
		case err != nil:
			return result, fmt.Errorf("failed to seed %s user: %w", role, err)
		default:
			result.Created = append(result.Created, username)
		}
	}
	return result, nil
}

func parseRoles(raw string) ([]models.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return models.Roles, nil
	}
	var roles []models.Role
	for _, part := range strings.Split(raw, ",") {
		role := models.Role(strings.TrimSpace(part))
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

type roleLister interface {
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

func printStats(ctx context.Context, users roleLister, roles []models.Role) error {
	fmt.Println("=== Users per role ===")
	for _, role := range roles {
		list, err := users.ListByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("failed to list %s users: %w", role, err)
		}
		fmt.Printf("  %-18s %d\n", role, len(list))
	}
	return nil
}

func roleTitle(role models.Role) string {
	words := strings.Split(string(role), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
