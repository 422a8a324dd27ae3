// Package sanitize redacts credentials and personal data from text that
// leaves the hub: command results written to the shared sheet and side
// channel notifications.
package sanitize

import (
	"sort"
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

type rule struct {
	pattern     *re2.Regexp
	replacement string
}

var rules = []rule{
	// key=value style credentials
	{re2.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|token|password|passwd|secret)(\s*[=:]\s*)("[^"]*"|'[^']*'|\S+)`), "${1}${2}[REDACTED]"},
	{re2.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`), "Bearer [REDACTED]"},
	// Telegram bot tokens
	{re2.MustCompile(`\b\d{6,12}:[A-Za-z0-9_-]{30,}\b`), "[REDACTED_BOT_TOKEN]"},
	// OpenAI-style and Facebook page tokens
	{re2.MustCompile(`\b(sk-[A-Za-z0-9_-]{16,}|EAA[A-Za-z0-9]{20,})\b`), "[REDACTED_KEY]"},
	// email addresses keep the first character and the domain
	{re2.MustCompile(`\b([A-Za-z0-9])[A-Za-z0-9._%+-]*@([A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,})\b`), "${1}***@${2}"},
	// UK phone numbers
	{re2.MustCompile(`(?:\+44\s?7\d{3}|\b07\d{3})\s?\d{3}\s?\d{3}\b`), "[REDACTED_PHONE]"},
}

var invisible = re2.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}]`)

// Redactor masks known secrets plus pattern-matched credentials and
// contact details.
type Redactor struct {
	secrets []string
}

// New returns a Redactor that also masks each of secrets verbatim. Values
// shorter than 6 characters are ignored.
func New(secrets ...string) *Redactor {
	var kept []string
	for _, s := range secrets {
		if len(s) >= 6 {
			kept = append(kept, s)
		}
	}
	// Longest first so a secret that contains another is masked whole.
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Redactor{secrets: kept}
}

// Redact returns s with secrets masked. A nil Redactor applies only the
// built-in patterns.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	out := Clean(s)
	if r != nil {
		for _, secret := range r.secrets {
			out = strings.ReplaceAll(out, secret, "[REDACTED]")
		}
	}
	for _, rl := range rules {
		out = rl.pattern.ReplaceAllString(out, rl.replacement)
	}
	return out
}

// Clean applies NFC normalization and drops invisible and control
// characters other than newline and tab.
func Clean(s string) string {
	normalized := invisible.ReplaceAllString(norm.NFC.String(s), "")

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
