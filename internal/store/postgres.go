package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions and their logs in PostgreSQL. Expiry is
// enforced by filtering on expires_at at read time; PurgeExpired reclaims rows.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lingocast_sessions (
			code TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			input_lang TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lingocast_entries (
			code TEXT NOT NULL REFERENCES lingocast_sessions(code) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts BIGINT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			data BYTEA NULL,
			content_type TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (code, kind, seq)
		);`,
		`ALTER TABLE lingocast_sessions ADD COLUMN IF NOT EXISTS session_id TEXT NOT NULL DEFAULT '';`,
		`CREATE INDEX IF NOT EXISTS idx_lingocast_sessions_expires ON lingocast_sessions (expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, code, inputLang string) error {
	if code == "" {
		return ErrInvalidInput
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pgUnavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `DELETE FROM lingocast_sessions WHERE code=$1`, code); err != nil {
		return pgUnavailable("reset session", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO lingocast_sessions (code, session_id, input_lang, created_at, last_activity_at, expires_at)
		 VALUES ($1, $2, $3, $4, $4, $5)`,
		code, uuid.NewString(), normalizeLang(inputLang), now, now.Add(s.ttl),
	)
	if err != nil {
		return pgUnavailable("insert session", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return pgUnavailable("commit", err)
	}
	return nil
}

func (s *PostgresStore) EndSession(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM lingocast_sessions WHERE code=$1 AND expires_at > now()`, code)
	if err != nil {
		return pgUnavailable("end session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Session(ctx context.Context, code string) (Meta, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, code, input_lang, created_at, last_activity_at, expires_at
		 FROM lingocast_sessions WHERE code=$1 AND expires_at > now()`, code)
	meta, err := scanMeta(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Meta{}, ErrNotFound
	}
	if err != nil {
		return Meta{}, pgUnavailable("get session", err)
	}
	return meta, nil
}

func (s *PostgresStore) Sessions(ctx context.Context) ([]Meta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, code, input_lang, created_at, last_activity_at, expires_at
		 FROM lingocast_sessions WHERE expires_at > now() ORDER BY code`)
	if err != nil {
		return nil, pgUnavailable("list sessions", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, pgUnavailable("scan session row", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, pgUnavailable("iterate session rows", err)
	}
	return out, nil
}

func (s *PostgresStore) SetInputLang(ctx context.Context, code, lang string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lingocast_sessions SET input_lang=$2 WHERE code=$1 AND expires_at > now()`,
		code, normalizeLang(lang))
	if err != nil {
		return pgUnavailable("set input lang", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InputLang(ctx context.Context, code string) (string, error) {
	meta, err := s.Session(ctx, code)
	if err != nil {
		return "", err
	}
	return meta.InputLang, nil
}

func (s *PostgresStore) Append(ctx context.Context, code string, kind Kind, entry Entry) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, pgUnavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock serializes appends per session so seq stays dense.
	var locked string
	err = tx.QueryRow(ctx,
		`SELECT code FROM lingocast_sessions WHERE code=$1 AND expires_at > now() FOR UPDATE`,
		code).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, pgUnavailable("lock session", err)
	}

	var seq int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM lingocast_entries WHERE code=$1 AND kind=$2`,
		code, string(kind)).Scan(&seq)
	if err != nil {
		return 0, pgUnavailable("count entries", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO lingocast_entries (code, kind, seq, ts, text, data, content_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		code, string(kind), seq, entry.Timestamp, entry.Text, entry.Data, entry.ContentType)
	if err != nil {
		return 0, pgUnavailable("insert entry", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE lingocast_sessions SET last_activity_at=now() WHERE code=$1`, code); err != nil {
		return 0, pgUnavailable("touch session", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, pgUnavailable("commit", err)
	}
	return seq + 1, nil
}

func (s *PostgresStore) ReadRange(ctx context.Context, code string, kind Kind, from, to int) ([]Entry, error) {
	if err := checkArgs(code, kind); err != nil {
		return nil, err
	}
	if _, err := s.Session(ctx, code); err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}
	upper := to
	if upper < 0 {
		upper = int(^uint32(0) >> 1)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ts, text, data, content_type FROM lingocast_entries
		 WHERE code=$1 AND kind=$2 AND seq >= $3 AND seq < $4 ORDER BY seq`,
		code, string(kind), from, upper)
	if err != nil {
		return nil, pgUnavailable("read range", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.Text, &e.Data, &e.ContentType); err != nil {
			return nil, pgUnavailable("scan entry row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pgUnavailable("iterate entry rows", err)
	}
	return out, nil
}

func (s *PostgresStore) Length(ctx context.Context, code string, kind Kind) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(e.seq) FROM lingocast_sessions s
		 LEFT JOIN lingocast_entries e ON e.code = s.code AND e.kind = $2
		 WHERE s.code = $1 AND s.expires_at > now()
		 GROUP BY s.code`,
		code, string(kind)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, pgUnavailable("length", err)
	}
	return n, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lingocast_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, pgUnavailable("purge expired", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return pgUnavailable("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanMeta(row pgx.Row) (Meta, error) {
	var m Meta
	if err := row.Scan(&m.ID, &m.Code, &m.InputLang, &m.CreatedAt, &m.LastActivityAt, &m.ExpiresAt); err != nil {
		return Meta{}, err
	}
	m.Active = true
	m.InputLang = normalizeLang(m.InputLang)
	m.CreatedAt = m.CreatedAt.UTC()
	m.LastActivityAt = m.LastActivityAt.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	return m, nil
}

func pgUnavailable(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %w", ErrUnavailable, op, err)
}
