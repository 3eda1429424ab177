package storage

import (
	"context"
	"testing"
)

func TestMigrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	var version int
	if err := store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", ExpectedSchemaVersion, version)
	}

	// Running migrations again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("Re-running migrations failed: %v", err)
	}
}

func TestMigrate_TablesAndIndexes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for _, table := range []string{"emails", "email_analyses", "purchases"} {
		var count int
		err := store.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?
		`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s was not created", table)
		}
	}

	for _, index := range []string{
		"idx_emails_received",
		"idx_analyses_analyzed_at",
		"idx_purchases_user_date",
		"idx_purchases_order",
		"idx_purchases_tracking",
		"idx_purchases_excluded",
	} {
		var count int
		err := store.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?
		`, index).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("Index %s was not created", index)
		}
	}
}
