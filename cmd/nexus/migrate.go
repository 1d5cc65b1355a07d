package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/nexus/config"
	"github.com/BaSui01/nexus/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printMigrateUsage(stderr)
		return exitUsage
	}

	sub, rest := args[0], args[1:]

	// force 需要一个位置参数
	forceVersion := 0
	if sub == "force" {
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: nexus migrate force <version> [options]")
			return exitUsage
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(stderr, "Invalid version number: %s\n", rest[0])
			return exitUsage
		}
		forceVersion, rest = v, rest[1:]
	}

	var action func(ctx context.Context, cli *migration.CLI) error
	switch sub {
	case "up":
		action = (*migration.CLI).RunUp
	case "down":
		action = (*migration.CLI).RunDown
	case "reset":
		action = (*migration.CLI).RunReset
	case "status":
		action = (*migration.CLI).RunStatus
	case "version":
		action = (*migration.CLI).RunVersion
	case "force":
		action = func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunForce(ctx, forceVersion)
		}
	case "help", "-h", "--help":
		printMigrateUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage(stderr)
		return exitUsage
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	migrator, err := createMigrator(fs, rest)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return exitError
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)

	if err := action(context.Background(), cli); err != nil {
		fmt.Fprintf(stderr, "Migrate %s failed: %v\n", sub, err)
		return exitError
	}
	return exitOK
}

// createMigrator 按命令行参数创建迁移器；--db-type 与 --db-url 同时给出时不读配置文件
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		t, err := migration.ParseDatabaseType(*dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{
			DatabaseType: t,
			DatabaseURL:  *dbURL,
			TableName:    "schema_migrations",
		})
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  nexus migrate <subcommand> [options]

Subcommands:
  up                Apply all pending migrations
  down              Rollback the last migration
  reset             Rollback all migrations
  status            Show migration status
  version           Show current migration version
  force <version>   Force set migration version (clears dirty state)

Options:
  --config <path>   Path to configuration file (YAML)
  --db-type <type>  Database type (postgres, mysql, sqlite)
  --db-url <url>    Database connection URL

Examples:
  nexus migrate up
  nexus migrate status --db-type sqlite --db-url file:/var/lib/nexus/cache.db
  nexus migrate force 1 --config config.yaml`)
}
