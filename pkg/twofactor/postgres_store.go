package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authkit/twofactor/pkg/backupcode"
)

// PostgresStore is a Store backed by a pgx connection pool. The two
// read-modify-write operations run inside transactions with row-level locks,
// which gives the atomic consume and promote the Store contract requires even
// across multiple service instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store over the given pool. Schema is managed by
// the goose migrations in migrations/.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pgx pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetCredential(ctx context.Context, identityID string) (*Credential, error) {
	const query = `
		SELECT id, identity_id, secret, state, digits, period, last_used_step,
		       created_at, confirmed_at, last_verified_at
		FROM two_factor_credentials
		WHERE identity_id = $1`

	var (
		cred        Credential
		confirmedAt *time.Time
		verifiedAt  *time.Time
	)
	err := s.pool.QueryRow(ctx, query, identityID).Scan(
		&cred.ID, &cred.IdentityID, &cred.Secret, &cred.State, &cred.Digits,
		&cred.Period, &cred.LastUsedStep, &cred.CreatedAt, &confirmedAt, &verifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	if confirmedAt != nil {
		cred.ConfirmedAt = *confirmedAt
	}
	if verifiedAt != nil {
		cred.LastVerifiedAt = *verifiedAt
	}
	return &cred, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, identityID string) error {
	// Backup codes go with it via ON DELETE CASCADE.
	_, err := s.pool.Exec(ctx,
		`DELETE FROM two_factor_credentials WHERE identity_id = $1`, identityID)
	return err
}

func (s *PostgresStore) RecordVerified(ctx context.Context, credentialID uuid.UUID, at time.Time, step int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE two_factor_credentials
		SET last_verified_at = $2,
		    last_used_step = GREATEST(last_used_step, $3)
		WHERE id = $1`,
		credentialID, at, step)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *PostgresStore) SavePendingSetup(ctx context.Context, setup *PendingSetup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO two_factor_pending_setups
			(identity_id, secret, backup_code_hashes, digits, period, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			backup_code_hashes = EXCLUDED.backup_code_hashes,
			digits = EXCLUDED.digits,
			period = EXCLUDED.period,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		setup.IdentityID, setup.Secret, setup.BackupCodeHashes,
		setup.Digits, setup.Period, setup.CreatedAt, setup.ExpiresAt)
	return err
}

func (s *PostgresStore) GetPendingSetup(ctx context.Context, identityID string) (*PendingSetup, error) {
	const query = `
		SELECT identity_id, secret, backup_code_hashes, digits, period, created_at, expires_at
		FROM two_factor_pending_setups
		WHERE identity_id = $1`

	var setup PendingSetup
	err := s.pool.QueryRow(ctx, query, identityID).Scan(
		&setup.IdentityID, &setup.Secret, &setup.BackupCodeHashes,
		&setup.Digits, &setup.Period, &setup.CreatedAt, &setup.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPendingSetupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setup, nil
}

func (s *PostgresStore) PromotePendingSetup(ctx context.Context, identityID string, setupCreatedAt time.Time, cred *Credential, backupHashes [][]byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The conditional delete is the optimistic check: zero rows means the
	// pending setup we validated was replaced or removed after we read it.
	tag, err := tx.Exec(ctx, `
		DELETE FROM two_factor_pending_setups
		WHERE identity_id = $1 AND created_at = $2`,
		identityID, setupCreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPendingSetupNotFound
	}

	// Replace any prior credential; its backup codes cascade away.
	if _, err := tx.Exec(ctx,
		`DELETE FROM two_factor_credentials WHERE identity_id = $1`, identityID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO two_factor_credentials
			(id, identity_id, secret, state, digits, period, last_used_step,
			 created_at, confirmed_at, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cred.ID, cred.IdentityID, cred.Secret, cred.State, cred.Digits, cred.Period,
		cred.LastUsedStep, cred.CreatedAt, cred.ConfirmedAt, cred.LastVerifiedAt); err != nil {
		return err
	}

	if err := insertBackupCodes(ctx, tx, cred.ID, backupHashes, cred.ConfirmedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) DeletePendingSetup(ctx context.Context, identityID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM two_factor_pending_setups WHERE identity_id = $1`, identityID)
	return err
}

func (s *PostgresStore) DeleteExpiredPendingSetups(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM two_factor_pending_setups WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ConsumeBackupCode(ctx context.Context, credentialID uuid.UUID, submitted string, at time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// FOR UPDATE serializes concurrent consumers of the same credential's
	// codes: two requests presenting the same code cannot both observe it
	// unused.
	rows, err := tx.Query(ctx, `
		SELECT id, code_hash
		FROM two_factor_backup_codes
		WHERE credential_id = $1 AND NOT used
		FOR UPDATE`,
		credentialID)
	if err != nil {
		return false, err
	}

	var matchedID uuid.UUID
	var found bool
	for rows.Next() {
		var id uuid.UUID
		var hash []byte
		if err := rows.Scan(&id, &hash); err != nil {
			rows.Close()
			return false, err
		}
		if !found && backupcode.Verify(submitted, hash) {
			matchedID, found = id, true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	if !found {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE two_factor_backup_codes
		SET used = TRUE, used_at = $2
		WHERE id = $1`,
		matchedID, at); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func (s *PostgresStore) CountUnusedBackupCodes(ctx context.Context, credentialID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM two_factor_backup_codes
		WHERE credential_id = $1 AND NOT used`,
		credentialID).Scan(&count)
	return count, err
}

func (s *PostgresStore) ReplaceBackupCodes(ctx context.Context, credentialID uuid.UUID, hashes [][]byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM two_factor_backup_codes WHERE credential_id = $1`, credentialID); err != nil {
		return err
	}
	if err := insertBackupCodes(ctx, tx, credentialID, hashes, time.Now()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertBackupCodes(ctx context.Context, tx pgx.Tx, credentialID uuid.UUID, hashes [][]byte, createdAt time.Time) error {
	for _, hash := range hashes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO two_factor_backup_codes (id, credential_id, code_hash, created_at)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), credentialID, hash, createdAt); err != nil {
			return err
		}
	}
	return nil
}
