// Package twofactor implements the second-factor credential lifecycle:
// provisioning a shared secret, confirming it with a first code, verifying
// codes on every subsequent login, disabling the factor, and managing the
// single-use recovery codes that stand in when the authenticator device is
// unavailable.
//
// The package orchestrates three lower layers over a pluggable Store:
// pkg/otp for the RFC 6238 code math, pkg/backupcode for recovery-code
// generation and hashing, and pkg/attemptlimit for the per-identity guess
// budget.
// MemoryStore covers tests and single-process deployments; PostgresStore gives
// the transactional guarantees the contract demands across replicas.
//
// # Lifecycle
//
//	Disabled → PendingConfirmation → Enabled → Disabled
//
//	svc, _ := twofactor.New(store,
//	    twofactor.WithIssuer("Acme"),
//	    twofactor.WithReauthVerifier(accountSystem.CheckPassword),
//	)
//
//	// 1. Provision: secret + QR URI + plaintext backup codes, shown exactly once.
//	res, _ := svc.Setup(ctx, identityID, "alice@example.com")
//
//	// 2. Confirm with a code from the enrolled authenticator.
//	err := svc.Enable(ctx, identityID, userInput)
//
//	// 3. Every login: TOTP first, backup code as the fallback path.
//	out, err := svc.Verify(ctx, identityID, userInput)
//
// # Failure semantics
//
// All wrong-code outcomes are uniform: callers see ErrInvalidCode (with the
// remaining attempt budget via InvalidCodeError) regardless of which path
// failed, so nothing leaks about why a value was rejected. Lockouts always
// carry a retry-after via LockedError. Only ErrStoreUnavailable is retriable;
// every other error is definitive for that call.
//
// # Replay protection
//
// Each credential tracks the last TOTP step it consumed. A code replayed
// within its 30-second window, even by a concurrent request, fails like any
// other wrong code. The cursor only advances, enforced by the store.
package twofactor
