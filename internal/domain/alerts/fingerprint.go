package alerts

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

// DeriveFingerprint computes the dedup key for a classified item.
// Precedence: watchlist hit > account number (slips) > URL host (sites) >
// per-payload fallback. Two items with the same fingerprint represent the
// same real-world suspicious entity.
func DeriveFingerprint(item *evidence.Item, hit watchlist.EntryID) Fingerprint {
	if hit != "" {
		return Fingerprint("wl:" + string(hit))
	}
	switch item.Category {
	case evidence.CategoryTransactionSlip:
		if acc := NormalizeAccount(item.Field(evidence.FieldAccountNumber)); acc != "" {
			return Fingerprint("slip:" + acc)
		}
	case evidence.CategorySuspiciousSite:
		if host := NormalizeHost(item.Field(evidence.FieldURL)); host != "" {
			return Fingerprint("site:" + host)
		}
	}
	// No identifying field: the item alerts on its own.
	return Fingerprint(fmt.Sprintf("%s:%s", item.Category, item.PayloadRef))
}

// NormalizeAccount keeps digits only, so "123-456-7890" and "1234567890"
// collide as intended.
func NormalizeAccount(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeHost lowercases the host part of a URL and drops port and
// a leading "www.".
func NormalizeHost(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
