// Package signal scores raw email text against weighted keyword and domain
// tables to assign a coarse email type before any extraction is attempted.
// Scoring is deterministic and side-effect-free: identical input always
// yields an identical result.
package signal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
)

var linkPattern = regexp.MustCompile(`https?://`)

// Scorer classifies emails as primary, newsletter, or service announcements.
type Scorer struct {
	rules           rules.SignalRules
	personalSubject []*regexp.Regexp
}

// NewScorer compiles the personal-subject patterns of the rule set and
// returns a ready scorer.
func NewScorer(r rules.SignalRules) (*Scorer, error) {
	patterns := make([]*regexp.Regexp, 0, len(r.PersonalSubject))
	for _, p := range r.PersonalSubject {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling personal subject pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &Scorer{rules: r, personalSubject: patterns}, nil
}

// Classify scores one email. Personal-looking subjects short-circuit to
// primary at full confidence and are never reclassified; otherwise service
// and newsletter scores accumulate from keyword, domain, and structure
// signals, and the first score to reach its threshold decides the type.
func (s *Scorer) Classify(email model.EmailMessage) model.ClassificationResult {
	subject := strings.ToLower(email.Subject)

	for i, re := range s.personalSubject {
		if re.MatchString(subject) {
			return model.ClassificationResult{
				Type:       model.EmailTypePrimary,
				Confidence: 100,
				Reasons:    []string{fmt.Sprintf("personal subject pattern: %s", s.rules.PersonalSubject[i])},
			}
		}
	}

	text := strings.ToLower(email.Subject + "\n" + email.Body + "\n" + email.Snippet)
	sender := strings.ToLower(email.From)
	body := strings.ToLower(email.Body)

	var reasons []string

	serviceHits := 0
	for _, kw := range s.rules.ServiceKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			serviceHits++
			reasons = append(reasons, fmt.Sprintf("service keyword: %s", kw))
		}
	}
	serviceScore := serviceHits * s.rules.ServiceWeight
	if serviceScore > s.rules.ServiceCap {
		serviceScore = s.rules.ServiceCap
	}

	newsletterHits := 0
	for _, kw := range s.rules.NewsletterKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			newsletterHits++
			reasons = append(reasons, fmt.Sprintf("marketing keyword: %s", kw))
		}
	}
	newsletterScore := newsletterHits * s.rules.NewsletterWeight
	if newsletterScore > s.rules.NewsletterCap {
		newsletterScore = s.rules.NewsletterCap
	}

	domain := senderDomain(sender)
	for _, esp := range s.rules.ESPDomains {
		if domain != "" && strings.Contains(domain, esp) {
			newsletterScore += s.rules.ESPWeight
			reasons = append(reasons, fmt.Sprintf("marketing ESP domain: %s", esp))
			break
		}
	}

	for _, p := range s.rules.NoReplyPatterns {
		if strings.Contains(sender, p) {
			// Reinforces whichever signal already fired; a bare no-reply
			// sender leans newsletter.
			if serviceScore > 0 && newsletterScore == 0 {
				serviceScore += s.rules.NoReplyWeight
			} else {
				newsletterScore += s.rules.NoReplyWeight
			}
			reasons = append(reasons, "no-reply sender")
			break
		}
	}

	for _, m := range s.rules.UnsubscribeMarkers {
		if strings.Contains(body, strings.ToLower(m)) {
			newsletterScore += s.rules.UnsubscribeWeight
			reasons = append(reasons, "unsubscribe marker in body")
			break
		}
	}

	if links := len(linkPattern.FindAllStringIndex(email.Body, -1)); links > s.rules.LinkThreshold {
		newsletterScore += s.rules.ManyLinksWeight
		reasons = append(reasons, fmt.Sprintf("many links (%d)", links))
	}

	switch {
	case serviceScore >= 50:
		return model.ClassificationResult{
			Type:       model.EmailTypeServiceAnnouncement,
			Confidence: clampScore(serviceScore),
			Reasons:    reasons,
		}
	case newsletterScore >= 50:
		return model.ClassificationResult{
			Type:       model.EmailTypeNewsletter,
			Confidence: clampScore(newsletterScore),
			Reasons:    reasons,
		}
	default:
		highest := serviceScore
		if newsletterScore > highest {
			highest = newsletterScore
		}
		return model.ClassificationResult{
			Type:       model.EmailTypePrimary,
			Confidence: clampScore(100 - highest),
			Reasons:    reasons,
		}
	}
}

func senderDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return ""
	}
	domain := sender[at+1:]
	// Strip a trailing "Name <addr>" bracket if present.
	domain = strings.TrimRight(domain, "> ")
	return domain
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
