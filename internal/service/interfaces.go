// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/mailspend/mailspend/internal/model"
)

// PurchaseFilter defines filtering options for purchase queries.
type PurchaseFilter struct {
	StartDate       *time.Time
	EndDate         *time.Time
	Vendor          string
	IncludeExcluded bool
	Limit           int
	Offset          int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Email operations
	SaveEmails(ctx context.Context, userID string, emails []model.EmailMessage) error
	GetEmailsToProcess(ctx context.Context, userID string, limit int) ([]model.EmailMessage, error)
	GetEmailByID(ctx context.Context, userID, emailID string) (*model.EmailMessage, error)
	CountEmails(ctx context.Context, userID string) (int, error)

	// Analysis operations (persistent cache tier)
	SaveAnalysis(ctx context.Context, analysis *model.StoredAnalysis) error
	GetAnalysis(ctx context.Context, userID, emailID string) (*model.StoredAnalysis, error)
	PruneAnalyses(ctx context.Context, olderThan time.Time) (int64, error)
	GetAnalysisStats(ctx context.Context, userID string, freshness time.Duration) (*AnalysisStats, error)

	// Purchase operations
	SavePurchase(ctx context.Context, purchase *model.PurchaseRecord) error
	GetPurchaseByID(ctx context.Context, id string) (*model.PurchaseRecord, error)
	GetPurchaseByEmailID(ctx context.Context, userID, emailID string) (*model.PurchaseRecord, error)
	GetPurchasesByUser(ctx context.Context, userID string, filter PurchaseFilter) ([]model.PurchaseRecord, error)
	SetPurchaseExcluded(ctx context.Context, id string, excluded bool, reason string) error
	DeletePurchase(ctx context.Context, id string) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// AnalyzeRequest carries one email to the external analyzer. The analyzer
// truncates Body to its character budget before building the prompt.
type AnalyzeRequest struct {
	EmailID string
	UserID  string
	Subject string
	From    string
	To      string
	CC      string
	Body    string
}

// AnalysisStats summarizes the persistent analysis cache for one user.
type AnalysisStats struct {
	Total    int64
	Fresh    int64
	Stale    int64
	Filtered int64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
