package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	versionLayout = "20060102150405"
	upMarker      = "-- +goose Up"
	downMarker    = "-- +goose Down"
)

var (
	fileNameRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<UTC timestamp>_<slug>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format(versionLayout), slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks that every .sql file in dir has a well-formed unique
// version and both goose sections, with Up before Down.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	byVersion := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (want YYYYMMDDHHMMSS_name.sql)", name)
		}
		if _, err := time.Parse(versionLayout, match[1]); err != nil {
			return fmt.Errorf("migration %q: version is not a timestamp", name)
		}
		if prev, dup := byVersion[match[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name)
		}
		byVersion[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkSections(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkSections(body string) error {
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", upMarker)
	case down < 0:
		return fmt.Errorf("missing %q", downMarker)
	case down < up:
		return fmt.Errorf("%q must come before %q", upMarker, downMarker)
	}
	return nil
}

func slugify(name string) string {
	slug := unsafeNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(slug, "_")
}
