package channels

import "strings"

// NormalizePhone converts a raw phone number into E.164 form. The rules
// mirror how numbers are stored in the user directory:
//
//   - everything except digits and a leading plus is stripped
//   - numbers already carrying a plus are returned as-is
//   - a leading local trunk zero is replaced by the default country code
//   - numbers already starting with the bare country code get a plus
//   - bare 8-digit local numbers get the default country code prepended
//   - anything else gets a plus prepended
//
// The function is deterministic and idempotent: normalizing an already
// normalized number returns it unchanged.
func NormalizePhone(raw, defaultCountryCode string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	cc := strings.TrimSpace(defaultCountryCode)
	if cc == "" {
		cc = "+216"
	}
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	bareCC := cc[1:]

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")

	switch {
	case cleaned == "":
		return ""
	case hasPlus:
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0") && len(cleaned) >= 9:
		return cc + cleaned[1:]
	case strings.HasPrefix(cleaned, bareCC) && len(cleaned) == len(bareCC)+8:
		return "+" + cleaned
	case len(cleaned) == 8:
		return cc + cleaned
	default:
		return "+" + cleaned
	}
}

// digitsOnly strips every non-digit rune. Some provider accounts reject the
// plus-prefixed form and accept the bare digits, so senders retry with this.
func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
