// Package testutil provides shared test helpers: an in-memory database with
// migrations applied and a fluent builder for test emails.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
	"github.com/mailspend/mailspend/internal/storage"
)

// TestDB is a migrated in-memory database scoped to one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. It automatically handles
// migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedEmails stores emails for a user or fails the test.
func (db *TestDB) SeedEmails(userID string, emails ...model.EmailMessage) {
	db.t.Helper()
	if err := db.Storage.SaveEmails(context.Background(), userID, emails); err != nil {
		db.t.Fatalf("failed to seed emails: %v", err)
	}
}

// EmailBuilder assembles a test email with sensible defaults.
type EmailBuilder struct {
	email model.EmailMessage
}

// NewEmail starts a builder for an email with the given ID.
func NewEmail(id string) *EmailBuilder {
	return &EmailBuilder{
		email: model.EmailMessage{
			ID:        id,
			Subject:   "ご注文の確認",
			From:      "order@example.co.jp",
			Body:      "ご注文ありがとうございます。",
			Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

// From sets the sender address.
func (b *EmailBuilder) From(from string) *EmailBuilder {
	b.email.From = from
	return b
}

// Subject sets the subject line.
func (b *EmailBuilder) Subject(subject string) *EmailBuilder {
	b.email.Subject = subject
	return b
}

// Body sets the body text.
func (b *EmailBuilder) Body(body string) *EmailBuilder {
	b.email.Body = body
	return b
}

// At sets the received timestamp.
func (b *EmailBuilder) At(ts time.Time) *EmailBuilder {
	b.email.Timestamp = ts
	return b
}

// Build returns the assembled email.
func (b *EmailBuilder) Build() model.EmailMessage {
	return b.email
}
