// Package keystore persists key envelopes in SQLite so ciphertexts can be
// decrypted later by id.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/keycodec"
)

// ErrNotFound is returned when no envelope has the requested id.
var ErrNotFound = errors.New("envelope not found")

// Store handles persistent storage of envelopes.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the key store at dbPath.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("keystore path cannot be empty")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS envelopes (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		encoding TEXT NOT NULL,
		delimiter TEXT NOT NULL,
		filler TEXT NOT NULL,
		cipher_key TEXT NOT NULL,
		ciphertext TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_envelopes_created ON envelopes(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save stores env, assigning an id and creation time when they are unset.
func (s *Store) Save(ctx context.Context, env *Envelope) error {
	if env == nil {
		return errors.New("envelope cannot be nil")
	}
	if env.Key == "" || env.Ciphertext == "" {
		return errors.New("envelope requires a key and a ciphertext")
	}
	if env.ID == "" {
		env.ID = ulid.Make().String()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO envelopes (id, mode, encoding, delimiter, filler, cipher_key, ciphertext, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		env.ID,
		string(env.Mode),
		string(env.Encoding),
		env.Delimiter,
		env.Filler,
		env.Key,
		env.Ciphertext,
		env.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert envelope: %w", err)
	}

	s.logger.Debug("stored envelope", "id", env.ID, "mode", env.Mode)
	return nil
}

// Get retrieves an envelope by id.
func (s *Store) Get(ctx context.Context, id string) (*Envelope, error) {
	query := `
	SELECT id, mode, encoding, delimiter, filler, cipher_key, ciphertext, created_at
	FROM envelopes
	WHERE id = ?
	`
	env, err := scanEnvelope(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query envelope: %w", err)
	}
	return env, nil
}

// List returns envelopes newest first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Envelope, error) {
	query := `
	SELECT id, mode, encoding, delimiter, filler, cipher_key, ciphertext, created_at
	FROM envelopes
	ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query envelopes: %w", err)
	}
	defer rows.Close()

	var envelopes []*Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan envelope: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate envelopes: %w", err)
	}
	return envelopes, nil
}

// Delete removes an envelope by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM envelopes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug("deleted envelope", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row scanner) (*Envelope, error) {
	var env Envelope
	var mode, encoding string
	var createdAt int64
	if err := row.Scan(
		&env.ID,
		&mode,
		&encoding,
		&env.Delimiter,
		&env.Filler,
		&env.Key,
		&env.Ciphertext,
		&createdAt,
	); err != nil {
		return nil, err
	}
	env.Mode = cipher.Mode(mode)
	env.Encoding = keycodec.Encoding(encoding)
	env.CreatedAt = time.Unix(0, createdAt).UTC()
	return &env, nil
}
