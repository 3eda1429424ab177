// Package storage provides the SQLite persistence layer for emails, analysis
// results, and purchase records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mailspend/mailspend/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrEmptySlice      = errors.New("slice cannot be empty")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidAnalysis = errors.New("invalid analysis")
	ErrInvalidPurchase = errors.New("invalid purchase")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEmails validates a slice of emails.
func validateEmails(emails []model.EmailMessage) error {
	if emails == nil {
		return fmt.Errorf("%w: emails", ErrNilParameter)
	}
	if len(emails) == 0 {
		return fmt.Errorf("%w: emails", ErrEmptySlice)
	}

	for i := range emails {
		if emails[i].ID == "" {
			return fmt.Errorf("%w: missing ID at index %d", ErrInvalidEmail, i)
		}
	}
	return nil
}

// validateAnalysis validates a stored analysis.
func validateAnalysis(analysis *model.StoredAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("%w: analysis", ErrNilParameter)
	}
	if analysis.EmailID == "" {
		return fmt.Errorf("%w: missing email ID", ErrInvalidAnalysis)
	}
	if analysis.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidAnalysis)
	}
	if analysis.Result == nil && !analysis.WasFiltered {
		return fmt.Errorf("%w: missing result on unfiltered analysis", ErrInvalidAnalysis)
	}
	return nil
}

// validatePurchase validates a purchase record.
func validatePurchase(purchase *model.PurchaseRecord) error {
	if purchase == nil {
		return fmt.Errorf("%w: purchase", ErrNilParameter)
	}
	if purchase.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPurchase)
	}
	if purchase.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidPurchase)
	}
	if purchase.EmailID == "" {
		return fmt.Errorf("%w: missing email ID", ErrInvalidPurchase)
	}
	if strings.TrimSpace(purchase.Vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidPurchase)
	}
	if purchase.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPurchase)
	}
	if purchase.Amount > model.MaxPurchaseAmount {
		return fmt.Errorf("%w: amount %.2f exceeds sanity bound", ErrInvalidPurchase, purchase.Amount)
	}
	if purchase.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidPurchase)
	}
	return nil
}
