package db

import (
	"strings"
	"testing"
)

func TestRunMigrations_InvalidDirection(t *testing.T) {
	if err := RunMigrations(nil, "sideways"); err == nil || !strings.Contains(err.Error(), "invalid migration direction") {
		t.Errorf("RunMigrations(sideways) error = %v, want invalid direction", err)
	}
}

func TestMigrationFiles_Paired(t *testing.T) {
	names, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles() error: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no embedded migrations")
	}

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", n)
		}
	}
	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down file", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up file", base)
		}
	}
}
