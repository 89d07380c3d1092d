// Package main is the entry point for the Gatehouse schema migration tool.
// It applies the embedded migrations for the configured database driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/config"
	"github.com/paragon-edu/gatehouse/internal/repository/postgres"
	"github.com/paragon-edu/gatehouse/internal/repository/sqlite"
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

	switch command {
	case "version":
		fmt.Printf("Gatehouse Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := migrateUp(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// migrateUp applies all pending migrations for the configured driver.
func migrateUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.MustLoad(*configPath)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx := context.Background()

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
	return nil
}

func printUsage() {
	fmt.Println(`Gatehouse Migration Tool

Usage:
  gatehouse-migrate <command> [arguments]

Commands:
  up          Apply all pending migrations
  version     Print version information
  help        Show this help message

Examples:
  gatehouse-migrate up
  gatehouse-migrate up --config ./configs/config.yaml

Environment Variables:
  GATEHOUSE_DATABASE_DRIVER    Database driver (sqlite or postgres)
  GATEHOUSE_DATABASE_PATH      SQLite database path
  GATEHOUSE_DATABASE_HOST      PostgreSQL host`)
}
