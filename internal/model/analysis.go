package model

import "time"

// AnalysisResult is the structured output of the external analyzer for one
// email. It mirrors the analyzer's JSON wire format and is treated as a value
// type; the pipeline never mutates it after decoding.
type AnalysisResult struct {
	EmailType        string            `json:"emailType"`
	Category         string            `json:"category"`
	Priority         string            `json:"priority"`
	Labels           []string          `json:"labels,omitempty"`
	CustomCategory   string            `json:"customCategory,omitempty"`
	Purchase         *PurchaseAnalysis `json:"purchase,omitempty"`
	Contacts         []ContactInfo     `json:"contacts,omitempty"`
	Discovery        *DiscoveryInfo    `json:"discovery,omitempty"`
	Event            *EventInfo        `json:"event,omitempty"`
	Summary          string            `json:"summary"`
	SuggestedActions []string          `json:"suggestedActions,omitempty"`
}

// PurchaseAnalysis is the analyzer's view of a possible purchase in an email.
type PurchaseAnalysis struct {
	IsPurchase     bool           `json:"isPurchase"`
	Confidence     float64        `json:"confidence"`
	Vendor         string         `json:"vendor,omitempty"`
	Amount         float64        `json:"amount,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	OrderID        string         `json:"orderId,omitempty"`
	Items          []PurchaseItem `json:"items,omitempty"`
	TrackingNumber string         `json:"trackingNumber,omitempty"`
	DeliveryDate   string         `json:"deliveryDate,omitempty"`
}

// ContactInfo is a contact the analyzer spotted in an email.
type ContactInfo struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email"`
	Company      string `json:"company,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Role         string `json:"role,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// DiscoveryInfo carries the analyzer's free-form observations about an email.
type DiscoveryInfo struct {
	KeyTopics   []string   `json:"keyTopics"`
	ActionItems []string   `json:"actionItems,omitempty"`
	Deadlines   []Deadline `json:"deadlines,omitempty"`
	Mentions    []string   `json:"mentions,omitempty"`
	Sentiment   string     `json:"sentiment"`
	Importance  int        `json:"importance"`
}

// Deadline is a dated task the analyzer found in an email body.
type Deadline struct {
	Task string `json:"task"`
	Date string `json:"date"`
}

// EventInfo describes a calendar event mentioned in an email.
type EventInfo struct {
	IsEvent     bool   `json:"isEvent"`
	Title       string `json:"title,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Location    string `json:"location,omitempty"`
	MeetingLink string `json:"meetingLink,omitempty"`
}

// StoredAnalysis is the persistent-cache record for one analyzed email.
// Result is nil when the email was filtered before analysis; WasFiltered and
// FilterReason record why.
type StoredAnalysis struct {
	AnalyzedAt   time.Time
	EmailID      string
	UserID       string
	From         string
	Subject      string
	FilterReason string
	Result       *AnalysisResult
	WasFiltered  bool
}
