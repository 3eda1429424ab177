// Package model defines the core domain models used throughout the application.
package model

import "time"

// EmailMessage is a single raw email handed to the pipeline. It is owned by
// the caller and never mutated.
type EmailMessage struct {
	Timestamp time.Time
	ID        string
	Subject   string
	From      string
	Body      string
	Snippet   string
}

// EmailType is the coarse classification assigned before any extraction.
type EmailType string

// Email type constants.
const (
	EmailTypePrimary             EmailType = "primary"
	EmailTypeNewsletter          EmailType = "newsletter"
	EmailTypeServiceAnnouncement EmailType = "service_announcement"
)

// ClassificationResult is the outcome of signal scoring for one email.
// It is consumed immediately by routing logic and never persisted on its own.
type ClassificationResult struct {
	Type       EmailType
	Reasons    []string
	Confidence int // 0-100
}

// EmailRole tags what part an email plays in a purchase lifecycle. It is
// distinct from EmailType: a shipping notice and an order confirmation are
// both "primary" emails but play different reconciliation roles.
type EmailRole string

// Email role constants, in descending reconciliation priority.
const (
	RoleCancellation EmailRole = "cancellation"
	RoleShipping     EmailRole = "shipping"
	RoleOrder        EmailRole = "order"
	RoleUnknown      EmailRole = "unknown"
)

// Precedence returns the field-resolution rank of the role when two emails
// describe the same purchase. Higher wins.
func (r EmailRole) Precedence() int {
	switch r {
	case RoleOrder:
		return 2
	case RoleShipping:
		return 1
	default:
		return 0
	}
}
