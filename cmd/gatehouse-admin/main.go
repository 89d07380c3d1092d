// Package main is the entry point for the Gatehouse admin CLI.
// It provides administrative commands for accounts, links, secrets and
// maintenance sweeps without going through the HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/access"
	"github.com/paragon-edu/gatehouse/internal/config"
	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/lock"
	"github.com/paragon-edu/gatehouse/internal/pkg/crypto"
	"github.com/paragon-edu/gatehouse/internal/repository"
	"github.com/paragon-edu/gatehouse/internal/repository/postgres"
	"github.com/paragon-edu/gatehouse/internal/repository/sqlite"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "version":
		fmt.Printf("Gatehouse Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "secret":
		err = cmdSecret(args)

	case "user":
		err = cmdUser(args)

	case "link":
		err = cmdLink(args)

	case "sweep":
		err = cmdSweep(args)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cmdSecret generates a random secret suitable for session signing or
// the owner key.
func cmdSecret(args []string) error {
	fs := flag.NewFlagSet("secret", flag.ExitOnError)
	n := fs.Int("bytes", 32, "secret length in bytes before encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := crypto.NewSecret(*n)
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	fmt.Println(secret)
	return nil
}

// cmdUser handles account management.
func cmdUser(args []string) error {
	if len(args) < 1 || args[0] != "create" {
		return fmt.Errorf("usage: gatehouse-admin user create --username <name> --password <pass> [--admin]")
	}

	fs := flag.NewFlagSet("user create", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	username := fs.String("username", "", "username for the new account")
	password := fs.String("password", "", "password for the new account")
	isAdmin := fs.Bool("admin", false, "grant the admin flag")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ctx := context.Background()
	cfg := config.MustLoad(*configPath)
	logger := cliLogger()

	repos, db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	users := service.NewUserService(repos.User, cfg.Auth.BcryptCost, logger)
	out, err := users.CreateUser(ctx, service.CreateUserInput{
		Username: *username,
		Password: *password,
		IsAdmin:  *isAdmin,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created user %q (id %d, admin=%v)\n", out.User.Username, out.User.ID, out.User.IsAdmin)
	return nil
}

// cmdLink handles link management.
func cmdLink(args []string) error {
	if len(args) < 1 || args[0] != "create" {
		return fmt.Errorf("usage: gatehouse-admin link create --target <id> --mode <free|paid> [--ttl-hours <n>] [--require-group-key]")
	}

	fs := flag.NewFlagSet("link create", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	target := fs.String("target", "", "target content id")
	mode := fs.String("mode", "paid", "link mode: free or paid")
	ttlHours := fs.Int("ttl-hours", 72, "lifetime in hours, -1 for no expiry")
	requireKey := fs.Bool("require-group-key", false, "require a valid group key on every check")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ctx := context.Background()
	cfg := config.MustLoad(*configPath)
	logger := cliLogger()

	repos, db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	evaluator := access.NewEvaluator(repos.AccessLink, nil, 0, nil, logger)
	links := service.NewLinkService(repos.AccessLink, evaluator, cfg.Auth.BcryptCost, cfg.Links.DefaultTTLHours, logger)

	out, err := links.CreateLink(ctx, service.CreateLinkInput{
		TargetID:        *target,
		Mode:            domain.LinkMode(*mode),
		TTLHours:        ttlHours,
		RequireGroupKey: *requireKey,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created %s link for %q\n", out.Link.Mode(), out.Link.TargetID)
	fmt.Printf("Token: %s\n", out.Link.Token)
	if out.Link.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", out.Link.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("Expires: never")
	}
	return nil
}

// cmdSweep runs one housekeeping sweep immediately.
func cmdSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg := config.MustLoad(*configPath)
	logger := cliLogger()

	repos, db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	housekeeper := service.NewHousekeeper(repos.AccessLink, repos.PrepAccess, lock.NewNoopLocker(), nil, logger, service.HousekeepingConfig{
		Interval:         cfg.Housekeeping.Interval,
		VisitorRetention: cfg.Housekeeping.VisitorRetention,
		LockTTL:          cfg.Housekeeping.LockTTL,
	})

	result := housekeeper.RunOnce(ctx)
	fmt.Printf("Sweep completed in %s\n", result.Duration)
	fmt.Printf("Entitlements archived: %d\n", result.Archived)
	fmt.Printf("Visitor rows pruned:   %d\n", result.VisitorsPruned)
	return nil
}

// openDatabase connects to the configured backend and builds the
// repository bundle. Migrations are expected to have been applied.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &repository.Repositories{
			AccessLink: sqlite.NewAccessLinkRepository(db),
			PrepAccess: sqlite.NewPrepAccessRepository(db),
			User:       sqlite.NewUserRepository(db),
		}, db, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return &repository.Repositories{
			AccessLink: postgres.NewAccessLinkRepository(db),
			PrepAccess: postgres.NewPrepAccessRepository(db),
			User:       postgres.NewUserRepository(db),
		}, db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func printUsage() {
	fmt.Println(`Gatehouse Admin CLI

Usage:
  gatehouse-admin <command> [arguments]

Commands:
  secret      Generate a random secret (owner key, session secret)
  user        Manage accounts (create)
  link        Manage access links (create)
  sweep       Run one housekeeping sweep immediately
  version     Print version information
  help        Show this help message

Examples:
  gatehouse-admin secret --bytes 32
  gatehouse-admin user create --username admin --password <pass> --admin
  gatehouse-admin link create --target lecture-42 --mode paid --ttl-hours 72
  gatehouse-admin sweep --config ./configs/config.yaml

Use "gatehouse-admin <command> --help" for more information about a command.`)
}
