package crypto

import "strings"

// MaskEmail reveals the first character of the local part and the full domain:
// "ab@x.com" -> "a****@x.com". Values without an "@" get a full-width mask.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "****"
	}
	return email[:1] + "****" + email[at:]
}

// MaskPhone strips non-digits and reveals only the last four digits:
// "+12065551234" -> "*******1234". Shorter values are fully masked.
func MaskPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
