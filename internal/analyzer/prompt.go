package analyzer

import (
	"fmt"

	"github.com/mailspend/mailspend/internal/service"
)

// systemPrompt is shared by all providers so every model is held to the same
// output contract.
const systemPrompt = "You are an email analysis engine for a personal purchase tracker. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, " +
	"markdown formatting, or commentary before or after the JSON. " +
	"Start your response directly with { and end with }."

const analysisPromptFormat = `Analyze the following email and describe it as a JSON object with these fields:
- emailType: one of "purchase", "credit_card_statement", "newsletter", "personal", "work", "notification", "spam", "other"
- category: short free-form category for the email
- priority: one of "high", "medium", "low"
- summary: one or two sentences summarizing the email
- labels: optional array of short label strings
- purchase: include only when the email concerns an order, receipt, shipment or refund:
  - isPurchase: boolean, true if the email documents an actual purchase by the recipient
  - confidence: number between 0 and 1
  - vendor: merchant or store name as written in the email
  - amount: total amount as a plain number, no currency symbols or thousands separators
  - currency: ISO 4217 code such as "JPY" or "USD"
  - orderId: order or confirmation number
  - items: array of {name, quantity, price}
  - trackingNumber: shipment tracking number
  - deliveryDate: expected delivery date as written in the email
- contacts: optional array of {name, email, company, phone, role, relationship}
- discovery: optional object with keyTopics (array), actionItems, deadlines ([{task, date}]), mentions, sentiment ("positive", "neutral" or "negative") and importance (1-10)
- event: optional object with isEvent, title, date, time, location, meetingLink
- suggestedActions: optional array of short action strings

Emails may be in Japanese, English, or a mix. Keep vendor names exactly as they
appear. Amounts written as 3,980円 or ¥3,980 mean amount 3980 with currency JPY.
Marketing mail about products the recipient has not bought is not a purchase.

Email:
From: %s
To: %s
CC: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// buildPrompt renders the user prompt for one email, truncating the body to
// the adapter's character budget.
func buildPrompt(req service.AnalyzeRequest, maxBody int) string {
	return fmt.Sprintf(analysisPromptFormat, req.From, req.To, req.CC, req.Subject, truncateBody(req.Body, maxBody))
}

// truncateBody caps the body at limit runes. Truncation is rune-based so a
// multi-byte character is never split mid-sequence.
func truncateBody(body string, limit int) string {
	if limit <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "\n[... content truncated ...]"
}
