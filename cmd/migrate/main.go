package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if code := runOffline(*cmd, *dir, *name); code >= 0 {
		os.Exit(code)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dir":    *dir,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	// goose only targets postgres; local sqlite databases get the embedded schema
	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		if *cmd != "up" {
			fail("sqlite only supports -cmd=up")
		}
		if err := migrate.ApplySQLiteSchema(ctx, sqlDB); err != nil {
			fail("sqlite schema failed: %v", err)
		}
		logg.Info(ctx, "sqlite schema applied")
		return
	}

	migrator, err := migrate.New(sqlDB, *dir, logg)
	requireResource(ctx, logg, "goose provider", err)
	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		err = migrator.To(ctx, *version)
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		fail("migrate %s failed: %v", *cmd, err)
	}
}

// runOffline handles the commands that never touch a database. It returns
// -1 when cmd needs a connection.
func runOffline(cmd, dir, name string) int {
	switch cmd {
	case "create":
		if name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			return 1
		}
		path, err := migrate.CreateSQLMigration(dir, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			return 1
		}
		fmt.Println("created migration:", path)
		return 0
	case "validate":
		if err := migrate.ValidateDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			return 1
		}
		fmt.Println("migration validation passed")
		return 0
	}
	return -1
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
