package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"math"
	"strings"
)

// hotp implements the RFC 4226 HMAC-based One-Time Password algorithm:
// an 8-byte big-endian counter is MACed with HMAC-SHA1 and reduced to a short
// numeric code via dynamic truncation.
func hotp(secret []byte, counter uint64, digits int) int {
	// Counter as big-endian 8-byte array (RFC 4226 requirement)
	counterBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		counterBytes[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, secret)
	mac.Write(counterBytes)
	sum := mac.Sum(nil)

	// Dynamic truncation (RFC 4226 §5.3): low 4 bits of the last byte pick the offset
	offset := sum[len(sum)-1] & 0x0f
	// 31-bit value (MSB cleared to keep it positive)
	value := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]&0xff) << 16) |
		(int(sum[offset+2]&0xff) << 8) |
		(int(sum[offset+3] & 0xff))

	return value % int(math.Pow10(digits))
}

// ComputeCode derives the TOTP code for the step containing unixTime.
// The result is zero-padded to digits width; leading zeros are significant
// and comparisons must be string-based. Zero-valued period or digits fall
// back to the RFC 6238 defaults.
func ComputeCode(secret []byte, unixTime int64, period, digits int) string {
	if period <= 0 {
		period = DefaultPeriod
	}
	if digits <= 0 {
		digits = DefaultDigits
	}
	counter := uint64(unixTime / int64(period))
	return fmt.Sprintf("%0*d", digits, hotp(secret, counter, digits))
}

// ValidateCode reports whether candidate matches the code for any step within
// ±skew of the step containing unixTime. Comparison is constant-time per step
// and every step in the window is evaluated even after a match, keeping the
// verification time independent of where (or whether) the candidate matched.
func ValidateCode(candidate string, secret []byte, unixTime int64, period, digits, skew int) bool {
	_, ok := MatchingStep(candidate, secret, unixTime, period, digits, skew)
	return ok
}

// MatchingStep is ValidateCode with the matched counter exposed, so callers
// can persist a "last consumed step" cursor and reject replays of the same
// code within its validity window.
func MatchingStep(candidate string, secret []byte, unixTime int64, period, digits, skew int) (int64, bool) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if digits <= 0 {
		digits = DefaultDigits
	}
	if skew < 0 {
		skew = DefaultSkew
	}

	candidate = strings.TrimSpace(candidate)
	if len(candidate) != digits || !isDigits(candidate) {
		return 0, false
	}

	counter := unixTime / int64(period)

	var matched int64
	var found bool
	for step := counter - int64(skew); step <= counter+int64(skew); step++ {
		if step < 0 {
			continue
		}
		code := fmt.Sprintf("%0*d", digits, hotp(secret, uint64(step), digits))
		if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) == 1 && !found {
			matched, found = step, true
		}
	}

	return matched, found
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
