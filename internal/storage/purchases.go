package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mailspend/mailspend/internal/common"
	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

const purchaseColumns = `
	id, user_id, email_id, order_id, vendor, amount, currency, purchase_date,
	items, status, tracking_number, payment_method, category, confidence,
	ai_analyzed, source_role, related_email_ids, is_excluded, exclusion_reason`

// SavePurchase inserts or replaces a purchase record by ID. The user and
// source email of an existing record never change; everything else is taken
// from the given record.
func (s *SQLiteStorage) SavePurchase(ctx context.Context, purchase *model.PurchaseRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePurchase(purchase); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.savePurchaseTx(ctx, tx, purchase); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) savePurchaseTx(ctx context.Context, tx *sql.Tx, purchase *model.PurchaseRecord) error {
	itemsJSON, err := marshalJSONColumn(purchase.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	relatedJSON, err := marshalJSONColumn(purchase.RelatedEmailIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal related email IDs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (
			id, user_id, email_id, order_id, vendor, amount, currency,
			purchase_date, items, status, tracking_number, payment_method,
			category, confidence, ai_analyzed, source_role, related_email_ids,
			is_excluded, exclusion_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_id = excluded.order_id,
			vendor = excluded.vendor,
			amount = excluded.amount,
			currency = excluded.currency,
			purchase_date = excluded.purchase_date,
			items = excluded.items,
			status = excluded.status,
			tracking_number = excluded.tracking_number,
			payment_method = excluded.payment_method,
			category = excluded.category,
			confidence = excluded.confidence,
			ai_analyzed = excluded.ai_analyzed,
			source_role = excluded.source_role,
			related_email_ids = excluded.related_email_ids,
			is_excluded = excluded.is_excluded,
			exclusion_reason = excluded.exclusion_reason,
			updated_at = CURRENT_TIMESTAMP
	`,
		purchase.ID,
		purchase.UserID,
		purchase.EmailID,
		purchase.OrderID,
		purchase.Vendor,
		purchase.Amount,
		purchase.Currency,
		purchase.Date,
		itemsJSON,
		string(purchase.Status),
		purchase.TrackingNumber,
		purchase.PaymentMethod,
		purchase.Category,
		purchase.Confidence,
		purchase.AIAnalyzed,
		string(purchase.SourceRole),
		relatedJSON,
		purchase.IsExcluded,
		purchase.ExclusionReason,
	)

	if err != nil {
		return fmt.Errorf("failed to save purchase %s: %w", purchase.ID, err)
	}

	return nil
}

// GetPurchaseByID retrieves a single purchase record.
func (s *SQLiteStorage) GetPurchaseByID(ctx context.Context, id string) (*model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getPurchaseByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getPurchaseByIDTx(ctx context.Context, q queryable, id string) (*model.PurchaseRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE id = ?
	`, id)
	return scanPurchase(row)
}

// GetPurchaseByEmailID retrieves the purchase whose originating email is
// emailID. Emails that were merged into another record do not match; use
// GetPurchasesByUser and PurchaseRecord.HasRelatedEmail for those.
func (s *SQLiteStorage) GetPurchaseByEmailID(ctx context.Context, userID, emailID string) (*model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return s.getPurchaseByEmailIDTx(ctx, s.db, userID, emailID)
}

func (s *SQLiteStorage) getPurchaseByEmailIDTx(ctx context.Context, q queryable, userID, emailID string) (*model.PurchaseRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE user_id = ? AND email_id = ?
	`, userID, emailID)
	return scanPurchase(row)
}

// GetPurchasesByUser retrieves the user's purchases, newest first. Excluded
// records are omitted unless the filter asks for them.
func (s *SQLiteStorage) GetPurchasesByUser(ctx context.Context, userID string, filter service.PurchaseFilter) ([]model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.getPurchasesByUserTx(ctx, s.db, userID, filter)
}

func (s *SQLiteStorage) getPurchasesByUserTx(ctx context.Context, q queryable, userID string, filter service.PurchaseFilter) ([]model.PurchaseRecord, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id = ?`
	args := []any{userID}

	if !filter.IncludeExcluded {
		query += " AND is_excluded = 0"
	}
	if filter.StartDate != nil {
		query += " AND purchase_date >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND purchase_date <= ?"
		args = append(args, *filter.EndDate)
	}
	if filter.Vendor != "" {
		query += " AND vendor = ?"
		args = append(args, filter.Vendor)
	}

	query += " ORDER BY purchase_date DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var purchases []model.PurchaseRecord
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *purchase)
	}

	return purchases, rows.Err()
}

// SetPurchaseExcluded flags or unflags a purchase. Unflagging clears the
// exclusion reason.
func (s *SQLiteStorage) SetPurchaseExcluded(ctx context.Context, id string, excluded bool, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.setPurchaseExcludedTx(ctx, s.db, id, excluded, reason)
}

func (s *SQLiteStorage) setPurchaseExcludedTx(ctx context.Context, q queryable, id string, excluded bool, reason string) error {
	if !excluded {
		reason = ""
	}

	result, err := q.ExecContext(ctx, `
		UPDATE purchases
		SET is_excluded = ?, exclusion_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, excluded, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update purchase exclusion: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	return nil
}

// DeletePurchase permanently removes a purchase record.
func (s *SQLiteStorage) DeletePurchase(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.deletePurchaseTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deletePurchaseTx(ctx context.Context, q queryable, id string) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM purchases WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*model.PurchaseRecord, error) {
	var purchase model.PurchaseRecord
	var itemsJSON, relatedJSON sql.NullString
	var status, sourceRole string

	err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.EmailID,
		&purchase.OrderID,
		&purchase.Vendor,
		&purchase.Amount,
		&purchase.Currency,
		&purchase.Date,
		&itemsJSON,
		&status,
		&purchase.TrackingNumber,
		&purchase.PaymentMethod,
		&purchase.Category,
		&purchase.Confidence,
		&purchase.AIAnalyzed,
		&sourceRole,
		&relatedJSON,
		&purchase.IsExcluded,
		&purchase.ExclusionReason,
	)

	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows // Not an error, just not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}

	purchase.Status = model.PurchaseStatus(status)
	purchase.SourceRole = model.EmailRole(sourceRole)

	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &purchase.Items); err != nil {
			return nil, fmt.Errorf("failed to parse items: %w", err)
		}
	}
	if relatedJSON.Valid && relatedJSON.String != "" {
		if err := json.Unmarshal([]byte(relatedJSON.String), &purchase.RelatedEmailIDs); err != nil {
			return nil, fmt.Errorf("failed to parse related email IDs: %w", err)
		}
	}

	return &purchase, nil
}

// marshalJSONColumn renders a slice as JSON, or empty string for an empty
// slice so the column stays readable in ad hoc queries.
func marshalJSONColumn(v any) (string, error) {
	switch s := v.(type) {
	case []model.PurchaseItem:
		if len(s) == 0 {
			return "", nil
		}
	case []string:
		if len(s) == 0 {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// queryable is an interface satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
