package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateSQLMigrationSlugifiesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "  Add Courier Rating!! ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_courier_rating.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected error for unusable name")
	}
}

func TestValidateDirRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad filename": {
			"create_bags.sql": "-- +goose Up\n-- +goose Down\n",
		},
		"duplicate version": {
			"20260901120000_a.sql": "-- +goose Up\n-- +goose Down\n",
			"20260901120000_b.sql": "-- +goose Up\n-- +goose Down\n",
		},
		"missing down": {
			"20260901120000_a.sql": "-- +goose Up\nSELECT 1;\n",
		},
		"down before up": {
			"20260901120000_a.sql": "-- +goose Down\n-- +goose Up\n",
		},
		"not a timestamp": {
			"20261399120000_a.sql": "-- +goose Up\n-- +goose Down\n",
		},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for file, body := range files {
				if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
