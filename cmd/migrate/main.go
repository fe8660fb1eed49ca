package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/yogaflow/attendance/internal/auth"
	"github.com/yogaflow/attendance/internal/config"
	"github.com/yogaflow/attendance/internal/database"
)

type adminSeed struct {
	name     string
	username string
	email    string
	password string
}

func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	seed := adminSeed{}
	flag.StringVar(&seed.username, "admin-username", os.Getenv("ADMIN_USERNAME"), "Administrator to create if missing")
	flag.StringVar(&seed.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "Password for the seeded administrator")
	flag.StringVar(&seed.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "Email for the seeded administrator")
	flag.StringVar(&seed.name, "admin-name", "Administrator", "Display name for the seeded administrator")
	flag.Parse()

	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, seed, log); err != nil {
		log.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("database ready", slog.String("driver", cfg.Database.Driver))
}

// run applies migrations and, when a username is given, makes sure that
// administrator exists.
func run(ctx context.Context, cfg *config.Config, seed adminSeed, log *slog.Logger) error {
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if seed.username == "" {
		return nil
	}

	existing, err := db.GetUserByUsername(ctx, seed.username)
	switch {
	case err == nil:
		log.Info("administrator already present", slog.String("username", existing.Username), slog.String("role", string(existing.Role)))
		return nil
	case !errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("look up %s: %w", seed.username, err)
	}

	accounts := auth.NewAccounts(db, auth.NewBcryptHasher(cfg.Auth.BcryptCost), nil, nil, nil, cfg.Auth.ResetCodeTTL, log)
	admin, err := accounts.CreateAdmin(ctx, seed.name, seed.username, seed.email, seed.password)
	if err != nil {
		return fmt.Errorf("create administrator: %w", err)
	}
	log.Info("administrator created", slog.String("username", admin.Username))
	return nil
}
