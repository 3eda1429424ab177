package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) SaveEmails(ctx context.Context, userID string, emails []model.EmailMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateEmails(emails); err != nil {
		return err
	}
	return t.storage.saveEmailsTx(ctx, t.tx, userID, emails)
}

func (t *sqliteTransaction) GetEmailsToProcess(ctx context.Context, userID string, limit int) ([]model.EmailMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return t.storage.getEmailsToProcessTx(ctx, t.tx, userID, limit)
}

func (t *sqliteTransaction) GetEmailByID(ctx context.Context, userID, emailID string) (*model.EmailMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return t.storage.getEmailByIDTx(ctx, t.tx, userID, emailID)
}

func (t *sqliteTransaction) CountEmails(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.countEmailsTx(ctx, t.tx, userID)
}

func (t *sqliteTransaction) SaveAnalysis(ctx context.Context, analysis *model.StoredAnalysis) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAnalysis(analysis); err != nil {
		return err
	}
	return t.storage.saveAnalysisTx(ctx, t.tx, analysis)
}

func (t *sqliteTransaction) GetAnalysis(ctx context.Context, userID, emailID string) (*model.StoredAnalysis, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return t.storage.getAnalysisTx(ctx, t.tx, userID, emailID)
}

func (t *sqliteTransaction) PruneAnalyses(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.pruneAnalysesTx(ctx, t.tx, olderThan)
}

func (t *sqliteTransaction) GetAnalysisStats(ctx context.Context, userID string, freshness time.Duration) (*service.AnalysisStats, error) {
	return t.storage.GetAnalysisStats(ctx, userID, freshness)
}

func (t *sqliteTransaction) SavePurchase(ctx context.Context, purchase *model.PurchaseRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePurchase(purchase); err != nil {
		return err
	}
	return t.storage.savePurchaseTx(ctx, t.tx, purchase)
}

func (t *sqliteTransaction) GetPurchaseByID(ctx context.Context, id string) (*model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getPurchaseByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetPurchaseByEmailID(ctx context.Context, userID, emailID string) (*model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return t.storage.getPurchaseByEmailIDTx(ctx, t.tx, userID, emailID)
}

func (t *sqliteTransaction) GetPurchasesByUser(ctx context.Context, userID string, filter service.PurchaseFilter) ([]model.PurchaseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return t.storage.getPurchasesByUserTx(ctx, t.tx, userID, filter)
}

func (t *sqliteTransaction) SetPurchaseExcluded(ctx context.Context, id string, excluded bool, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.setPurchaseExcludedTx(ctx, t.tx, id, excluded, reason)
}

func (t *sqliteTransaction) DeletePurchase(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.deletePurchaseTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
