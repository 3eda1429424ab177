package reconcile

import (
	"strings"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
)

// RoleClassifier tags an email's part in a purchase lifecycle using disjoint
// keyword tiers. Cancellation is checked first: a cancellation keyword
// anywhere overrides order and shipping signals.
type RoleClassifier struct {
	rules rules.RoleRules
}

// NewRoleClassifier returns a classifier over the given role tables.
func NewRoleClassifier(r rules.RoleRules) *RoleClassifier {
	return &RoleClassifier{rules: r}
}

// Classify returns the email's role. Unknown when no tier matches.
func (c *RoleClassifier) Classify(subject, body string) model.EmailRole {
	text := strings.ToLower(subject + "\n" + body)

	if containsAny(text, c.rules.Cancellation) {
		return model.RoleCancellation
	}
	if containsAny(text, c.rules.Shipping) {
		return model.RoleShipping
	}
	if containsAny(text, c.rules.Order) {
		return model.RoleOrder
	}
	return model.RoleUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
