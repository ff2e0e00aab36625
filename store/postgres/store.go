package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/credcore"
)

const uniqueViolation = "23505"

// Store implements credcore.CredentialStore on database/sql with the pgx driver.
type Store struct {
	db *sql.DB
}

var _ credcore.CredentialStore = (*Store)(nil)

// Open connects to dsn, checks the connection and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, record *credcore.CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	query :=
		`INSERT INTO credentials (identity, scheme, secret, salt, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	var salt any
	if len(record.Salt) > 0 {
		salt = record.Salt
	}

	_, err := s.db.ExecContext(ctx, query,
		record.Identity, int16(record.Scheme), record.Secret, salt, record.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return credcore.ErrDuplicateIdentity
		}
		return mapError(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, identity string) (*credcore.CredentialRecord, error) {
	query :=
		`SELECT identity, scheme, secret, salt, reset_digest, reset_expires_at, created_at
		 FROM credentials
		 WHERE identity = $1`

	return s.scanRecord(s.db.QueryRowContext(ctx, query, identity))
}

// BindResetToken replaces the outstanding digest. A zero expiresAt is stored
// as NULL and never expires.
func (s *Store) BindResetToken(ctx context.Context, identity, digest string, expiresAt time.Time) error {
	query :=
		`UPDATE credentials
		 SET reset_digest = $2, reset_expires_at = $3
		 WHERE identity = $1`

	var exp any
	if !expiresAt.IsZero() {
		exp = expiresAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, query, identity, digest, exp)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *Store) LookupResetToken(ctx context.Context, digest string) (*credcore.CredentialRecord, error) {
	query :=
		`SELECT identity, scheme, secret, salt, reset_digest, reset_expires_at, created_at
		 FROM credentials
		 WHERE reset_digest = $1`

	return s.scanRecord(s.db.QueryRowContext(ctx, query, digest))
}

// ClearResetToken removes digest only while it is still the outstanding token
// for identity.
func (s *Store) ClearResetToken(ctx context.Context, identity, digest string) error {
	query :=
		`UPDATE credentials
		 SET reset_digest = NULL, reset_expires_at = NULL
		 WHERE identity = $1 AND reset_digest = $2`

	res, err := s.db.ExecContext(ctx, query, identity, digest)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *Store) scanRecord(row *sql.Row) (*credcore.CredentialRecord, error) {
	var (
		rec       credcore.CredentialRecord
		scheme    int64
		digest    sql.NullString
		expiresAt sql.NullTime
	)

	err := row.Scan(&rec.Identity, &scheme, &rec.Secret, &rec.Salt, &digest, &expiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credcore.ErrNotFound
		}
		return nil, mapError(err)
	}

	if scheme < 0 || scheme > 255 {
		return nil, fmt.Errorf("%w: scheme %d", credcore.ErrCorruptRecord, scheme)
	}
	rec.Scheme = credcore.Scheme(scheme)
	if len(rec.Salt) == 0 {
		rec.Salt = nil
	}
	rec.ResetTokenDigest = digest.String
	if expiresAt.Valid {
		rec.ResetExpiresAt = expiresAt.Time.UTC()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: identity %q", credcore.ErrCorruptRecord, rec.Identity)
	}
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return credcore.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", credcore.ErrStoreUnavailable, err)
}
