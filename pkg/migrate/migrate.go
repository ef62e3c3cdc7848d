package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

// Migrator runs the Postgres migrations in a directory through a goose
// provider. sqlite databases use ApplySQLiteSchema instead.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(db *sql.DB, dir string, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.logResults(ctx, []*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Status logs one line per known migration.
func (m *Migrator) Status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

// To migrates up or down until the database sits at targetVersion.
func (m *Migrator) To(ctx context.Context, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	default:
		results, err = m.provider.DownTo(ctx, target)
	}
	m.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func (m *Migrator) logResults(ctx context.Context, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}
