package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}\b`)
	cardPattern = regexp.MustCompile(`\b(?:[0-9][ -]?){13,19}\b`)
	digitRuns   = regexp.MustCompile(`[0-9]{4,}`)
)

// Anonymizer strips transaction text of identifying detail before it leaves
// the process. Merchant identity becomes a salted hash; description text has
// IBAN-shaped tokens, card-number-shaped tokens and digit runs redacted.
type Anonymizer struct {
	salt string
}

func NewAnonymizer(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// MerchantHash replaces a merchant name with a stable pseudonym. The same
// merchant always maps to the same token within one salt.
func (a *Anonymizer) MerchantHash(name string) string {
	if name == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(a.salt + strings.ToLower(strings.TrimSpace(name))))
	return "m_" + hex.EncodeToString(sum[:])[:12]
}

// RedactDescription removes account-identifying tokens from free text.
func (a *Anonymizer) RedactDescription(text string) string {
	redacted := ibanPattern.ReplaceAllString(text, "[IBAN]")
	redacted = cardPattern.ReplaceAllString(redacted, "[CARD]")
	redacted = digitRuns.ReplaceAllString(redacted, "[NUM]")
	return redacted
}
