package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/channel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a goMFA.Store backed by PostgreSQL. Apply [Migrate] first.
type Store struct {
	pool *pgxpool.Pool
}

var _ goMFA.Store = (*Store)(nil)

// New returns a Store using pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens and pings a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}
	return pool, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", goMFA.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const methodColumns = `id, user_id, type, state, verified, secret, destination, created_at, last_used_at`

func scanMethod(row pgx.Row) (goMFA.MFAMethod, error) {
	var (
		m        goMFA.MFAMethod
		typ      int16
		state    int16
		lastUsed *time.Time
	)
	err := row.Scan(&m.ID, &m.UserID, &typ, &state, &m.Verified, &m.Secret, &m.Destination, &m.CreatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goMFA.MFAMethod{}, goMFA.ErrMethodNotFound
		}
		return goMFA.MFAMethod{}, unavailable(err)
	}
	m.Type = goMFA.MethodType(typ)
	m.State = goMFA.MethodState(state)
	m.CreatedAt = m.CreatedAt.UTC()
	if lastUsed != nil {
		at := lastUsed.UTC()
		m.LastUsedAt = &at
	}
	return m, nil
}

func (s *Store) SaveMethod(ctx context.Context, m goMFA.MFAMethod) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Backup and channel codes of the replaced method go with it
		// through the foreign key cascade.
		if _, err := tx.Exec(ctx,
			`DELETE FROM mfa_methods WHERE user_id = $1 AND type = $2 AND id <> $3`,
			m.UserID, int16(m.Type), m.ID,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO mfa_methods (`+methodColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				state = EXCLUDED.state,
				verified = EXCLUDED.verified,
				secret = EXCLUDED.secret,
				destination = EXCLUDED.destination,
				last_used_at = EXCLUDED.last_used_at`,
			m.ID, m.UserID, int16(m.Type), int16(m.State), m.Verified, m.Secret, m.Destination, m.CreatedAt.UTC(), m.LastUsedAt,
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return goMFA.ErrConcurrencyConflict
	default:
		return unavailable(err)
	}
}

func (s *Store) GetMethod(ctx context.Context, userID string, t goMFA.MethodType) (goMFA.MFAMethod, error) {
	return scanMethod(s.pool.QueryRow(ctx,
		`SELECT `+methodColumns+` FROM mfa_methods WHERE user_id = $1 AND type = $2`,
		userID, int16(t),
	))
}

func (s *Store) GetMethodByID(ctx context.Context, methodID string) (goMFA.MFAMethod, error) {
	return scanMethod(s.pool.QueryRow(ctx,
		`SELECT `+methodColumns+` FROM mfa_methods WHERE id = $1`,
		methodID,
	))
}

func (s *Store) ListMethods(ctx context.Context, userID string) ([]goMFA.MFAMethod, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+methodColumns+` FROM mfa_methods WHERE user_id = $1 ORDER BY type`,
		userID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := make([]goMFA.MFAMethod, 0, 4)
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// exists distinguishes a missing method from a failed condition after an
// UPDATE touched no rows.
func (s *Store) exists(ctx context.Context, methodID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mfa_methods WHERE id = $1)`, methodID).Scan(&ok)
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// liveState classifies a method for the consume operations.
func liveState(state int16) error {
	if goMFA.MethodState(state) == goMFA.StateDisabled {
		return goMFA.ErrMethodNotEnabled
	}
	return nil
}

// withLiveMethod runs fn in a transaction holding a share lock on the method
// row, so a concurrent TransitionMethod either commits before fn observes the
// method or waits for fn to finish. fn is skipped for a missing or disabled
// method.
func (s *Store) withLiveMethod(ctx context.Context, methodID string, fn func(pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var state int16
		err := tx.QueryRow(ctx, `SELECT state FROM mfa_methods WHERE id = $1 FOR SHARE`, methodID).Scan(&state)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return goMFA.ErrMethodNotFound
		case err != nil:
			return unavailable(err)
		}
		if err := liveState(state); err != nil {
			return err
		}
		return fn(tx)
	})
	if err == nil || isOutcome(err) {
		return err
	}
	return unavailable(err)
}

func isOutcome(err error) bool {
	for _, known := range []error{
		goMFA.ErrStoreUnavailable,
		goMFA.ErrMethodNotFound,
		goMFA.ErrMethodNotEnabled,
		goMFA.ErrCodeMismatch,
		goMFA.ErrCodeExpired,
		goMFA.ErrCodeAlreadyUsed,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

func (s *Store) TransitionMethod(ctx context.Context, methodID string, from, to goMFA.MethodState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE mfa_methods
		SET state = $3, verified = verified OR $4
		WHERE id = $1 AND state = $2`,
		methodID, int16(from), int16(to), to == goMFA.StateEnabled,
	)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := s.exists(ctx, methodID)
	switch {
	case err != nil:
		return err
	case !ok:
		return goMFA.ErrMethodNotFound
	default:
		return goMFA.ErrConcurrencyConflict
	}
}

func (s *Store) TouchMethod(ctx context.Context, methodID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE mfa_methods SET last_used_at = $2 WHERE id = $1`, methodID, at.UTC())
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return goMFA.ErrMethodNotFound
	}
	return nil
}

func (s *Store) AdvanceCounter(ctx context.Context, methodID string, counter uint64) (bool, error) {
	if counter > math.MaxInt64 {
		return false, fmt.Errorf("postgres: counter %d out of range", counter)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mfa_methods SET last_counter = $2
		WHERE id = $1 AND state <> $3 AND (last_counter IS NULL OR last_counter < $2)`,
		methodID, int64(counter), int16(goMFA.StateDisabled),
	)
	if err != nil {
		return false, unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var state int16
	err = s.pool.QueryRow(ctx, `SELECT state FROM mfa_methods WHERE id = $1`, methodID).Scan(&state)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, goMFA.ErrMethodNotFound
	case err != nil:
		return false, unavailable(err)
	}
	return false, liveState(state)
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, methodID string, hashes [][32]byte) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE method_id = $1`, methodID); err != nil {
			return err
		}
		rows := make([][]any, 0, len(hashes))
		for _, h := range hashes {
			rows = append(rows, []any{methodID, h[:]})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"mfa_backup_codes"},
			[]string{"method_id", "code_hash"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ConsumeBackupCode(ctx context.Context, methodID string, hash [32]byte) error {
	return s.withLiveMethod(ctx, methodID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE mfa_backup_codes SET used_at = now()
			WHERE method_id = $1 AND code_hash = $2 AND used_at IS NULL`,
			methodID, hash[:],
		)
		if err != nil {
			return unavailable(err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var used bool
		err = tx.QueryRow(ctx,
			`SELECT used_at IS NOT NULL FROM mfa_backup_codes WHERE method_id = $1 AND code_hash = $2`,
			methodID, hash[:],
		).Scan(&used)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return goMFA.ErrCodeMismatch
		case err != nil:
			return unavailable(err)
		case used:
			return goMFA.ErrCodeAlreadyUsed
		default:
			return goMFA.ErrCodeMismatch
		}
	})
}

func (s *Store) CountBackupCodes(ctx context.Context, methodID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM mfa_backup_codes WHERE method_id = $1 AND used_at IS NULL`,
		methodID,
	).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) DeleteBackupCodes(ctx context.Context, methodID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE method_id = $1`, methodID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) SaveChannelCode(ctx context.Context, rec goMFA.ChannelOTPRecord, retain time.Duration) error {
	purgeAt := rec.IssuedAt.Add(retain)
	if purgeAt.Before(rec.ExpiresAt) {
		purgeAt = rec.ExpiresAt
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM mfa_channel_codes WHERE purge_at < $1`, rec.IssuedAt.UTC())
	batch.Queue(`
		INSERT INTO mfa_channel_codes (method_id, code_hash, issued_at, expires_at, purge_at, used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (method_id, code_hash) DO UPDATE SET
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			purge_at = EXCLUDED.purge_at,
			used = EXCLUDED.used`,
		rec.MethodID, rec.CodeHash[:], rec.IssuedAt.UTC(), rec.ExpiresAt.UTC(), purgeAt.UTC(), rec.Used,
	)
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ConsumeChannelCode(ctx context.Context, methodID string, hash [32]byte, now time.Time) error {
	now = now.UTC()
	return s.withLiveMethod(ctx, methodID, func(tx pgx.Tx) error {
		var (
			expiresAt time.Time
			purgeAt   time.Time
			used      bool
		)
		err := tx.QueryRow(ctx, `
			SELECT expires_at, purge_at, used FROM mfa_channel_codes
			WHERE method_id = $1 AND code_hash = $2
			FOR UPDATE`,
			methodID, hash[:],
		).Scan(&expiresAt, &purgeAt, &used)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return goMFA.ErrCodeMismatch
		case err != nil:
			return unavailable(err)
		case now.After(purgeAt):
			return goMFA.ErrCodeMismatch
		}

		switch err := channel.Classify(expiresAt, used, now); {
		case errors.Is(err, channel.ErrExpired):
			return goMFA.ErrCodeExpired
		case errors.Is(err, channel.ErrAlreadyUsed):
			return goMFA.ErrCodeAlreadyUsed
		}

		if _, err := tx.Exec(ctx,
			`UPDATE mfa_channel_codes SET used = TRUE WHERE method_id = $1 AND code_hash = $2`,
			methodID, hash[:],
		); err != nil {
			return unavailable(err)
		}
		return nil
	})
}

func (s *Store) DeleteChannelCodes(ctx context.Context, methodID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM mfa_channel_codes WHERE method_id = $1`, methodID); err != nil {
		return unavailable(err)
	}
	return nil
}
