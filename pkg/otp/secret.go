package otp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	DefaultSecretLength = 20     // 160-bit secret (RFC 4226 recommendation for HMAC-SHA1)
	DefaultDigits       = 6      // Standard 6-digit codes
	DefaultPeriod       = 30     // 30-second step (RFC 6238 standard)
	DefaultAlgorithm    = "SHA1" // HMAC-SHA1 (RFC 6238 standard)

	// DefaultSkew accepts one step on either side of the current one (±30s of
	// clock drift). Widening the skew grows the brute-force search space for an
	// attacker linearly; treat any value above 1 as a deliberate trade-off, not
	// a tuning knob.
	DefaultSkew = 1
)

// SecretKeyRegex matches the RFC 4648 Base32 alphabet: uppercase A-Z, digits 2-7,
// optional trailing padding.
var SecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

// GenerateSecret returns length cryptographically secure random bytes for use
// as a shared TOTP secret. A length of 0 falls back to DefaultSecretLength.
func GenerateSecret(length int) ([]byte, error) {
	if length <= 0 {
		length = DefaultSecretLength
	}
	secret := make([]byte, length)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Join(ErrFailedToGenerateSecret, err)
	}
	return secret, nil
}

// EncodeSecret encodes raw secret bytes using the RFC 4648 Base32 alphabet
// without padding, the form expected in otpauth provisioning URIs.
func EncodeSecret(secret []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
}

// DecodeSecret decodes a Base32 secret back into raw bytes. Input is
// normalized first: surrounding whitespace is trimmed, lowercase letters are
// accepted, and trailing padding is ignored so secrets copied from apps that
// emit padded output still decode.
func DecodeSecret(text string) ([]byte, error) {
	text = strings.TrimRight(strings.ToUpper(strings.TrimSpace(text)), "=")
	if text == "" || !SecretKeyRegex.MatchString(text) {
		return nil, ErrInvalidSecretEncoding
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(text)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecretEncoding, err)
	}
	return secret, nil
}

// ProvisioningParams contains the parameters for otpauth URI generation.
type ProvisioningParams struct {
	Secret      string // Base32-encoded shared secret (required)
	AccountName string // User identifier like email (required)
	Issuer      string // Service name displayed in authenticator apps (required)
	Algorithm   string // HMAC algorithm (optional, defaults to SHA1)
	Digits      int    // Number of digits in generated codes (optional, defaults to 6)
	Period      int    // Code validity period in seconds (optional, defaults to 30)
}

// Validate ensures all required provisioning parameters are present and valid.
func (p ProvisioningParams) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !SecretKeyRegex.MatchString(p.Secret) {
		return ErrInvalidSecretEncoding
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

func (p ProvisioningParams) withDefaults() ProvisioningParams {
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	return p
}

// ProvisioningURI builds an otpauth://totp/ URI for onboarding to authenticator
// apps, following the Key Uri Format specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func ProvisioningURI(params ProvisioningParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	params = params.withDefaults()

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", params.Algorithm)
	query.Set("digits", fmt.Sprintf("%d", params.Digits))
	query.Set("period", fmt.Sprintf("%d", params.Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}
