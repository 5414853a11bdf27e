// Package otp implements the cryptographic core of time-based one-time
// passwords: secret generation and Base32 encoding, otpauth provisioning URI
// construction, and RFC 6238 code computation/validation built on the RFC 4226
// HOTP primitive.
//
// The package is deliberately stateless. ComputeCode and ValidateCode take the
// Unix time explicitly so callers control the clock (and tests can pin it);
// persistence, rate limiting, and replay protection belong to the lifecycle
// layer built on top.
//
// # Usage
//
//	secret, _ := otp.GenerateSecret(otp.DefaultSecretLength)
//
//	uri, _ := otp.ProvisioningURI(otp.ProvisioningParams{
//	    Secret:      otp.EncodeSecret(secret),
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//	// render uri as a QR code for the authenticator app
//
//	ok := otp.ValidateCode(userInput, secret, time.Now().Unix(),
//	    otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew)
//
// Validation compares the zero-padded string form of each candidate step with
// crypto/subtle so timing does not leak which step (if any) matched. Leading
// zeros are significant: "007421" and "7421" are different codes.
//
// # See Also
//
//   - RFC 4226 – HMAC-Based One-Time Password (HOTP) Algorithm
//   - RFC 6238 – Time-Based One-Time Password (TOTP) Algorithm
package otp
