package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mailspend/mailspend/internal/model"
)

// SaveEmails stores a batch of raw emails for later processing. Emails already
// stored for the user are left untouched, so re-running an import is safe.
func (s *SQLiteStorage) SaveEmails(ctx context.Context, userID string, emails []model.EmailMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateEmails(emails); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveEmailsTx(ctx, tx, userID, emails); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveEmailsTx(ctx context.Context, tx *sql.Tx, userID string, emails []model.EmailMessage) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO emails (
			id, user_id, subject, sender, body, snippet, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, email := range emails {
		_, err = stmt.ExecContext(ctx,
			email.ID,
			userID,
			email.Subject,
			email.From,
			email.Body,
			email.Snippet,
			email.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert email %s: %w", email.ID, err)
		}
	}

	return nil
}

// GetEmailsToProcess retrieves stored emails that have no analysis record yet,
// oldest first. A limit of 0 or less means no limit.
func (s *SQLiteStorage) GetEmailsToProcess(ctx context.Context, userID string, limit int) ([]model.EmailMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.getEmailsToProcessTx(ctx, s.db, userID, limit)
}

func (s *SQLiteStorage) getEmailsToProcessTx(ctx context.Context, q queryable, userID string, limit int) ([]model.EmailMessage, error) {
	query := `
		SELECT e.id, e.subject, e.sender, e.body, e.snippet, e.received_at
		FROM emails e
		LEFT JOIN email_analyses a ON e.user_id = a.user_id AND e.id = a.email_id
		WHERE e.user_id = ? AND a.email_id IS NULL
		ORDER BY e.received_at ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var emails []model.EmailMessage
	for rows.Next() {
		var email model.EmailMessage
		err := rows.Scan(
			&email.ID,
			&email.Subject,
			&email.From,
			&email.Body,
			&email.Snippet,
			&email.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	return emails, rows.Err()
}

// GetEmailByID retrieves a single stored email.
func (s *SQLiteStorage) GetEmailByID(ctx context.Context, userID, emailID string) (*model.EmailMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return s.getEmailByIDTx(ctx, s.db, userID, emailID)
}

func (s *SQLiteStorage) getEmailByIDTx(ctx context.Context, q queryable, userID, emailID string) (*model.EmailMessage, error) {
	var email model.EmailMessage

	err := q.QueryRowContext(ctx, `
		SELECT id, subject, sender, body, snippet, received_at
		FROM emails
		WHERE user_id = ? AND id = ?
	`, userID, emailID).Scan(
		&email.ID,
		&email.Subject,
		&email.From,
		&email.Body,
		&email.Snippet,
		&email.Timestamp,
	)

	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows // Not an error, just not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	return &email, nil
}

// CountEmails returns how many emails are stored for the user.
func (s *SQLiteStorage) CountEmails(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	return s.countEmailsTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) countEmailsTx(ctx context.Context, q queryable, userID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM emails WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}
