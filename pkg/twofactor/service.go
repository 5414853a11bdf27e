package twofactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/authkit/twofactor/pkg/attemptlimit"
	"github.com/authkit/twofactor/pkg/backupcode"
	"github.com/authkit/twofactor/pkg/logger"
	"github.com/authkit/twofactor/pkg/otp"
)

// ReauthVerifier proves that the caller re-authenticated with their primary
// credential. The account system owns this check; the lifecycle only consumes
// its verdict.
type ReauthVerifier func(ctx context.Context, identityID, proof string) (bool, error)

// Service ties the codec, TOTP engine, backup codes, and attempt limiter into
// the credential lifecycle: setup, enable, verify, disable, and backup-code
// regeneration.
type Service struct {
	store   Store
	limiter *attemptlimit.Limiter
	cipher  SecretCipher
	reauth  ReauthVerifier
	log     *slog.Logger
	clock   func() time.Time

	issuer           string
	digits           int
	period           int
	skew             int
	pendingTTL       time.Duration
	backupCount      int
	lowCodesWarnAt   int
	ownsLimiterStore *attemptlimit.MemoryStore
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLimiter supplies an attempt limiter, e.g. one backed by Redis. Without
// it the service runs an in-process limiter with default policy.
func WithLimiter(l *attemptlimit.Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithSecretCipher enables encryption at rest for shared secrets.
func WithSecretCipher(c SecretCipher) Option {
	return func(s *Service) {
		if c != nil {
			s.cipher = c
		}
	}
}

// WithReauthVerifier wires the external account system's primary-credential
// recheck, required by Disable.
func WithReauthVerifier(v ReauthVerifier) Option {
	return func(s *Service) {
		if v != nil {
			s.reauth = v
		}
	}
}

// WithIssuer sets the issuer label rendered in authenticator apps.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithDigits fixes the code length for newly provisioned credentials.
func WithDigits(digits int) Option {
	return func(s *Service) {
		if digits > 0 {
			s.digits = digits
		}
	}
}

// WithPeriod sets the TOTP step in seconds for newly provisioned credentials.
func WithPeriod(period int) Option {
	return func(s *Service) {
		if period > 0 {
			s.period = period
		}
	}
}

// WithSkew sets how many steps either side of now are accepted. Anything above
// 1 widens the brute-force window and should be a deliberate, documented
// choice.
func WithSkew(skew int) Option {
	return func(s *Service) {
		if skew >= 0 {
			s.skew = skew
		}
	}
}

// WithPendingSetupTTL sets the confirmation window for a pending setup.
func WithPendingSetupTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// WithBackupCodeCount sets how many recovery codes are issued per batch.
func WithBackupCodeCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.backupCount = n
		}
	}
}

// WithLowBackupCodeThreshold sets the remaining-codes count at which
// VerifyResult.LowBackupCodes starts warning.
func WithLowBackupCodeThreshold(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.lowCodesWarnAt = n
		}
	}
}

// New creates a lifecycle service over the given store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	s := &Service{
		store:          store,
		cipher:         noopCipher{},
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:          time.Now,
		issuer:         "twofactor",
		digits:         otp.DefaultDigits,
		period:         otp.DefaultPeriod,
		skew:           otp.DefaultSkew,
		pendingTTL:     10 * time.Minute,
		backupCount:    backupcode.DefaultBatchSize,
		lowCodesWarnAt: 2,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		memStore := attemptlimit.NewMemoryStore()
		limiter, err := attemptlimit.New(memStore)
		if err != nil {
			memStore.Close()
			return nil, err
		}
		s.limiter = limiter
		s.ownsLimiterStore = memStore
	}

	return s, nil
}

// Close releases resources owned by the service (the default in-process
// limiter store, when no limiter was injected).
func (s *Service) Close() {
	if s.ownsLimiterStore != nil {
		s.ownsLimiterStore.Close()
	}
}

// Setup provisions a new candidate secret and recovery batch for an identity.
// Any previous pending setup is discarded; an enabled credential, if one
// exists, stays untouched until the new secret is confirmed, so the identity
// never loses second-factor protection mid-enrollment.
func (s *Service) Setup(ctx context.Context, identityID, accountLabel string) (*SetupResult, error) {
	if identityID == "" {
		return nil, ErrIdentityRequired
	}
	if accountLabel == "" {
		accountLabel = identityID
	}

	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secretKey := otp.EncodeSecret(secret)

	uri, err := otp.ProvisioningURI(otp.ProvisioningParams{
		Secret:      secretKey,
		AccountName: accountLabel,
		Issuer:      s.issuer,
		Digits:      s.digits,
		Period:      s.period,
	})
	if err != nil {
		return nil, fmt.Errorf("build provisioning uri: %w", err)
	}

	codes, err := backupcode.Generate(s.backupCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([][]byte, len(codes))
	for i, code := range codes {
		if hashes[i], err = backupcode.Hash(code); err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
	}

	sealed, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	now := s.clock()
	setup := &PendingSetup{
		IdentityID:       identityID,
		Secret:           sealed,
		BackupCodeHashes: hashes,
		Digits:           s.digits,
		Period:           s.period,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.pendingTTL),
	}

	if err := s.store.SavePendingSetup(ctx, setup); err != nil {
		return nil, transient(err)
	}

	s.log.InfoContext(ctx, "two-factor setup issued",
		logger.IdentityID(identityID),
		slog.Time("expires_at", setup.ExpiresAt),
		logger.Component("twofactor"),
	)

	return &SetupResult{
		SecretKey:       secretKey,
		ProvisioningURI: uri,
		BackupCodes:     codes,
		ExpiresAt:       setup.ExpiresAt,
	}, nil
}

// Enable confirms a pending setup with a code from the newly enrolled
// authenticator. A missing or expired setup fails before the attempt limiter
// is consulted; there is nothing live to rate-limit against. On success the
// candidate secret becomes the enabled credential and the pending setup is
// gone.
func (s *Service) Enable(ctx context.Context, identityID, code string) error {
	if identityID == "" {
		return ErrIdentityRequired
	}

	setup, err := s.store.GetPendingSetup(ctx, identityID)
	if errors.Is(err, ErrPendingSetupNotFound) {
		return ErrNoPendingSetup
	}
	if err != nil {
		return transient(err)
	}

	now := s.clock()
	if setup.Expired(now) {
		// Lazy cleanup; the sweeper would get it eventually.
		_ = s.store.DeletePendingSetup(ctx, identityID)
		return ErrSetupExpired
	}

	status, err := s.limiter.Check(ctx, identityID)
	if err != nil {
		return transient(err)
	}
	if !status.Allowed {
		return &LockedError{RetryAfter: status.RetryAfter}
	}

	secret, err := s.cipher.Decrypt(setup.Secret)
	if err != nil {
		return fmt.Errorf("decrypt candidate secret: %w", err)
	}

	step, ok := otp.MatchingStep(code, secret, now.Unix(), setup.Period, setup.Digits, s.skew)
	if !ok {
		return s.failAttempt(ctx, identityID)
	}

	cred := &Credential{
		ID:             uuid.New(),
		IdentityID:     identityID,
		Secret:         setup.Secret, // stays sealed; stores never see raw key material
		State:          StateEnabled,
		Digits:         setup.Digits,
		Period:         setup.Period,
		LastUsedStep:   step,
		CreatedAt:      setup.CreatedAt,
		ConfirmedAt:    now,
		LastVerifiedAt: now,
	}

	// Promotion re-checks the pending row inside the store transaction: if a
	// concurrent Setup replaced it after our read, the promote fails and the
	// enable must not validate a secret that is no longer authoritative.
	err = s.store.PromotePendingSetup(ctx, identityID, setup.CreatedAt, cred, setup.BackupCodeHashes)
	if errors.Is(err, ErrPendingSetupNotFound) {
		return ErrSetupExpired
	}
	if err != nil {
		return transient(err)
	}

	if err := s.limiter.RecordSuccess(ctx, identityID); err != nil {
		s.log.WarnContext(ctx, "failed to reset attempt limiter",
			logger.IdentityID(identityID), logger.Error(err), logger.Component("twofactor"))
	}

	s.log.InfoContext(ctx, "two-factor enabled",
		logger.IdentityID(identityID), logger.Component("twofactor"))

	return nil
}

// Verify checks a submitted value against the enabled credential: first as a
// TOTP code, then as a backup code. Exactly one path can succeed per call, and
// a miss on both records a single failed attempt.
func (s *Service) Verify(ctx context.Context, identityID, code string) (*VerifyResult, error) {
	if identityID == "" {
		return nil, ErrIdentityRequired
	}

	cred, err := s.getEnabled(ctx, identityID)
	if err != nil {
		return nil, err
	}

	status, err := s.limiter.Check(ctx, identityID)
	if err != nil {
		return nil, transient(err)
	}
	if !status.Allowed {
		return nil, &LockedError{RetryAfter: status.RetryAfter}
	}

	now := s.clock()

	secret, err := s.cipher.Decrypt(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}

	// A matching step at or below the cursor is a replay of an already
	// consumed code and falls through to the failure path.
	if step, ok := otp.MatchingStep(code, secret, now.Unix(), cred.Period, cred.Digits, s.skew); ok && step > cred.LastUsedStep {
		if err := s.store.RecordVerified(ctx, cred.ID, now, step); err != nil {
			return nil, transient(err)
		}
		return s.succeed(ctx, identityID, cred.ID, MethodTOTP)
	}

	consumed, err := s.store.ConsumeBackupCode(ctx, cred.ID, code, now)
	if err != nil {
		return nil, transient(err)
	}
	if consumed {
		if err := s.store.RecordVerified(ctx, cred.ID, now, cred.LastUsedStep); err != nil {
			return nil, transient(err)
		}
		return s.succeed(ctx, identityID, cred.ID, MethodBackupCode)
	}

	return nil, s.failAttempt(ctx, identityID)
}

// Disable turns the second factor off after the account system confirms a
// fresh primary-credential authentication. The secret and every backup code
// are erased.
func (s *Service) Disable(ctx context.Context, identityID, reauthProof string) error {
	if identityID == "" {
		return ErrIdentityRequired
	}
	if s.reauth == nil {
		return ErrReauthNotConfigured
	}

	if _, err := s.getEnabled(ctx, identityID); err != nil {
		return err
	}

	ok, err := s.reauth(ctx, identityID, reauthProof)
	if err != nil {
		return fmt.Errorf("reauth check: %w", err)
	}
	if !ok {
		s.log.WarnContext(ctx, "two-factor disable rejected, reauth failed",
			logger.IdentityID(identityID), logger.Component("twofactor"))
		return ErrUnauthorized
	}

	if err := s.store.DeleteCredential(ctx, identityID); err != nil {
		return transient(err)
	}
	_ = s.store.DeletePendingSetup(ctx, identityID)
	_ = s.limiter.RecordSuccess(ctx, identityID)

	s.log.InfoContext(ctx, "two-factor disabled",
		logger.IdentityID(identityID), logger.Component("twofactor"))

	return nil
}

// RegenerateBackupCodes invalidates every existing backup code and issues a
// fresh batch. Only a live TOTP code authorizes this: accepting a backup code
// here would let an attacker holding one stolen code mint a full new set.
func (s *Service) RegenerateBackupCodes(ctx context.Context, identityID, code string) ([]string, error) {
	if identityID == "" {
		return nil, ErrIdentityRequired
	}

	cred, err := s.getEnabled(ctx, identityID)
	if err != nil {
		return nil, err
	}

	status, err := s.limiter.Check(ctx, identityID)
	if err != nil {
		return nil, transient(err)
	}
	if !status.Allowed {
		return nil, &LockedError{RetryAfter: status.RetryAfter}
	}

	now := s.clock()

	secret, err := s.cipher.Decrypt(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}

	step, ok := otp.MatchingStep(code, secret, now.Unix(), cred.Period, cred.Digits, s.skew)
	if !ok || step <= cred.LastUsedStep {
		return nil, s.failAttempt(ctx, identityID)
	}

	codes, err := backupcode.Generate(s.backupCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([][]byte, len(codes))
	for i, c := range codes {
		if hashes[i], err = backupcode.Hash(c); err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
	}

	if err := s.store.ReplaceBackupCodes(ctx, cred.ID, hashes); err != nil {
		return nil, transient(err)
	}
	if err := s.store.RecordVerified(ctx, cred.ID, now, step); err != nil {
		return nil, transient(err)
	}
	if err := s.limiter.RecordSuccess(ctx, identityID); err != nil {
		s.log.WarnContext(ctx, "failed to reset attempt limiter",
			logger.IdentityID(identityID), logger.Error(err), logger.Component("twofactor"))
	}

	s.log.InfoContext(ctx, "backup codes regenerated",
		logger.IdentityID(identityID), logger.Component("twofactor"))

	return codes, nil
}

// BackupCodesRemaining reports how many unused recovery codes the identity
// has left, for the UI's low-codes warning.
func (s *Service) BackupCodesRemaining(ctx context.Context, identityID string) (int, error) {
	cred, err := s.getEnabled(ctx, identityID)
	if err != nil {
		return 0, err
	}

	count, err := s.store.CountUnusedBackupCodes(ctx, cred.ID)
	if err != nil {
		return 0, transient(err)
	}
	return count, nil
}

// Status reports where the identity's second factor stands in its lifecycle:
// StateEnabled for a confirmed credential, StatePendingConfirmation for a
// setup issued but not yet confirmed, StateDisabled otherwise. An expired
// pending setup counts as disabled.
func (s *Service) Status(ctx context.Context, identityID string) (State, error) {
	if identityID == "" {
		return "", ErrIdentityRequired
	}

	_, err := s.getEnabled(ctx, identityID)
	if err == nil {
		return StateEnabled, nil
	}
	if !errors.Is(err, ErrNotEnabled) {
		return "", err
	}

	setup, err := s.store.GetPendingSetup(ctx, identityID)
	if errors.Is(err, ErrPendingSetupNotFound) {
		return StateDisabled, nil
	}
	if err != nil {
		return "", transient(err)
	}
	if setup.Expired(s.clock()) {
		return StateDisabled, nil
	}
	return StatePendingConfirmation, nil
}

// Sweep deletes expired pending setups and stale attempt windows. Pure
// housekeeping: correctness never depends on it running, so any cadence (or
// none) is safe.
func (s *Service) Sweep(ctx context.Context) error {
	removed, err := s.store.DeleteExpiredPendingSetups(ctx, s.clock())
	if err != nil {
		return transient(err)
	}
	if removed > 0 {
		s.log.DebugContext(ctx, "expired pending setups removed",
			slog.Int("count", removed), logger.Component("twofactor"))
	}
	return s.limiter.Sweep(ctx)
}

func (s *Service) getEnabled(ctx context.Context, identityID string) (*Credential, error) {
	cred, err := s.store.GetCredential(ctx, identityID)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, ErrNotEnabled
	}
	if err != nil {
		return nil, transient(err)
	}
	if cred.State != StateEnabled {
		return nil, ErrNotEnabled
	}
	return cred, nil
}

// failAttempt records one failed attempt and shapes the uniform wrong-code
// outcome. Callers learn only the remaining budget, never which check failed.
func (s *Service) failAttempt(ctx context.Context, identityID string) error {
	status, err := s.limiter.RecordFailure(ctx, identityID)
	if err != nil {
		return transient(err)
	}
	if !status.Allowed {
		return &LockedError{RetryAfter: status.RetryAfter}
	}
	return &InvalidCodeError{AttemptsRemaining: status.Remaining}
}

func (s *Service) succeed(ctx context.Context, identityID string, credentialID uuid.UUID, method Method) (*VerifyResult, error) {
	if err := s.limiter.RecordSuccess(ctx, identityID); err != nil {
		s.log.WarnContext(ctx, "failed to reset attempt limiter",
			logger.IdentityID(identityID), logger.Error(err), logger.Component("twofactor"))
	}

	remaining, err := s.store.CountUnusedBackupCodes(ctx, credentialID)
	if err != nil {
		return nil, transient(err)
	}

	s.log.InfoContext(ctx, "two-factor verification succeeded",
		logger.IdentityID(identityID),
		slog.String("method", string(method)),
		logger.Component("twofactor"),
	)

	return &VerifyResult{
		Method:               method,
		BackupCodesRemaining: remaining,
		LowBackupCodes:       remaining <= s.lowCodesWarnAt,
	}, nil
}
