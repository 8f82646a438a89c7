// Package mailcheck classifies email addresses before any transactional
// email is sent: it rejects syntactically invalid or disposable addresses
// and suggests a correction when the domain looks like a typo of a
// well-known provider.
package mailcheck

import (
	"context"
	"net/mail"
	"strings"
)

// Domains most of our users type, used both for free-provider
// classification and as the did-you-mean dictionary.
var freeProviderDomains = map[string]struct{}{
	"gmail.com":        {},
	"googlemail.com":   {},
	"yahoo.com":        {},
	"yahoo.fr":         {},
	"hotmail.com":      {},
	"hotmail.fr":       {},
	"outlook.com":      {},
	"outlook.fr":       {},
	"live.com":         {},
	"live.fr":          {},
	"icloud.com":       {},
	"orange.fr":        {},
	"wanadoo.fr":       {},
	"free.fr":          {},
	"sfr.fr":           {},
	"laposte.net":      {},
	"gmx.fr":           {},
	"protonmail.com":   {},
	"proton.me":        {},
	"numericable.fr":   {},
	"bbox.fr":          {},
	"aliceadsl.fr":     {},
	"club-internet.fr": {},
}

var disposableDomains = map[string]struct{}{
	"yopmail.com":       {},
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"trashmail.com":     {},
	"jetable.org":       {},
}

type Checker struct {
	skipValidation bool
}

func NewChecker(skipValidation bool) *Checker {
	return &Checker{skipValidation: skipValidation}
}

// IsEmailSafeToSend reports whether a transactional email can reasonably be
// sent to email, and when it cannot, a did-you-mean suggestion if one is
// available.
func (c *Checker) IsEmailSafeToSend(_ context.Context, email string) (bool, string, error) {
	if c.skipValidation {
		return true, "", nil
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return false, DidYouMean(email), nil
	}

	domain := EmailDomain(email)
	if _, disposable := disposableDomains[domain]; disposable {
		return false, "", nil
	}

	if suggestion := DidYouMean(email); suggestion != "" {
		return false, suggestion, nil
	}

	return true, "", nil
}

// EmailDomain extracts the lowercased domain part of an email address.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// UsesAFreeEmailProvider reports whether the address belongs to a personal
// (non-organizational) email provider.
func UsesAFreeEmailProvider(email string) bool {
	_, ok := freeProviderDomains[EmailDomain(email)]
	return ok
}

// DidYouMean returns a corrected address when the domain is one edit away
// from a well-known provider, or an empty string when no suggestion exists.
func DidYouMean(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}

	local := email[:at]
	domain := EmailDomain(email)
	if domain == "" {
		return ""
	}
	if _, known := freeProviderDomains[domain]; known {
		return ""
	}

	best := ""
	bestDistance := 2
	for candidate := range freeProviderDomains {
		if d := levenshtein(domain, candidate); d < bestDistance || (d == bestDistance && best == "") {
			if d <= 1 || (d == 2 && len(domain) > 5) {
				best = candidate
				bestDistance = d
			}
		}
	}
	if best == "" {
		return ""
	}

	return local + "@" + best
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
