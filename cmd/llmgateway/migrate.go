package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands.
// Versioned migrations apply to postgres; sqlite deployments rely on
// AutoMigrate at startup.
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		runMigrateStep(subargs, func(ctx context.Context, m *migration.Migrator) error {
			return m.Up(ctx)
		})
	case "down":
		runMigrateStep(subargs, func(ctx context.Context, m *migration.Migrator) error {
			return m.Down(ctx)
		})
	case "version":
		runMigrateVersion(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  llmgateway migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  version   Show current migration version
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --db-url <url>    Database connection URL (default: from config)

Examples:
  llmgateway migrate up
  llmgateway migrate up --config /etc/llmgateway/config.yaml
  llmgateway migrate down
  llmgateway migrate version`)
}

// createMigrator 从命令行参数或配置构造迁移器。
func createMigrator(fs *flag.FlagSet, args []string) (*migration.Migrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbURL != "" {
		return migration.New(*dbURL, nil)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("versioned migrations require postgres (driver: %s); sqlite uses auto-migrate on serve", cfg.Database.Driver)
	}

	return migration.New(cfg.Database.URL(), nil)
}

func runMigrateStep(args []string, step func(context.Context, *migration.Migrator) error) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := step(context.Background(), migrator); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func runMigrateVersion(args []string) {
	fs := flag.NewFlagSet("migrate version", flag.ExitOnError)
	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	version, dirty, err := migrator.Version()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("version: %d, dirty: %v\n", version, dirty)
}
