package waitlist

import (
	"regexp"
	"strings"
)

var (
	acceptReply  = regexp.MustCompile(`^(yes|y|accept|ok|okay|sure|confirm)$`)
	declineReply = regexp.MustCompile(`^(no|n|decline|reject|cancel|pass)$`)
	replyNoise   = regexp.MustCompile(`[^a-z]+`)
)

// ParseReply maps a free-text SMS body to a decision. Case, whitespace and
// punctuation are ignored so "Yes!" and " no. " are understood.
func ParseReply(body string) (Decision, bool) {
	word := replyNoise.ReplaceAllString(strings.ToLower(strings.TrimSpace(body)), "")
	switch {
	case acceptReply.MatchString(word):
		return DecisionAccept, true
	case declineReply.MatchString(word):
		return DecisionDecline, true
	default:
		return "", false
	}
}
