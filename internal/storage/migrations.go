package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS emails (
					id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					subject TEXT,
					sender TEXT,
					body TEXT,
					snippet TEXT,
					received_at DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, id)
				)`,
				`CREATE INDEX idx_emails_received ON emails(user_id, received_at)`,

				`CREATE TABLE IF NOT EXISTS email_analyses (
					email_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					sender TEXT,
					subject TEXT,
					result TEXT,
					was_filtered BOOLEAN DEFAULT 0,
					filter_reason TEXT,
					analyzed_at DATETIME NOT NULL,
					PRIMARY KEY (user_id, email_id)
				)`,
				`CREATE INDEX idx_analyses_analyzed_at ON email_analyses(analyzed_at)`,

				`CREATE TABLE IF NOT EXISTS purchases (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					email_id TEXT NOT NULL,
					order_id TEXT,
					vendor TEXT NOT NULL,
					amount REAL NOT NULL,
					currency TEXT NOT NULL DEFAULT 'JPY',
					purchase_date DATETIME NOT NULL,
					items TEXT,
					status TEXT NOT NULL,
					tracking_number TEXT,
					confidence REAL DEFAULT 0,
					ai_analyzed BOOLEAN DEFAULT 0,
					related_email_ids TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, email_id)
				)`,
				`CREATE INDEX idx_purchases_user_date ON purchases(user_id, purchase_date)`,
				`CREATE INDEX idx_purchases_order ON purchases(user_id, vendor, order_id)`,
				`CREATE INDEX idx_purchases_tracking ON purchases(user_id, tracking_number)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add purchase exclusion flags for cancelled orders",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE purchases ADD COLUMN is_excluded BOOLEAN DEFAULT 0`,
				`ALTER TABLE purchases ADD COLUMN exclusion_reason TEXT DEFAULT ''`,
				`CREATE INDEX idx_purchases_excluded ON purchases(user_id, is_excluded)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add payment method, category, and source role to purchases",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE purchases ADD COLUMN payment_method TEXT DEFAULT ''`,
				`ALTER TABLE purchases ADD COLUMN category TEXT DEFAULT ''`,
				`ALTER TABLE purchases ADD COLUMN source_role TEXT NOT NULL DEFAULT 'unknown'`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
