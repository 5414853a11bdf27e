// Package backupcode generates and verifies single-use recovery codes that
// stand in for a TOTP code when the authenticator device is unavailable.
//
// Codes are drawn from a CSPRNG over an unambiguous alphanumeric alphabet and
// formatted as XXXXX-XXXXX. Only bcrypt hashes of the normalized form are
// intended for storage; the plaintext batch returned by Generate is shown to
// the user exactly once. The single-use bookkeeping (marking a code consumed
// atomically) lives in the lifecycle store, not here.
package backupcode
