// Package session keeps the CLI's access tokens in a local SQLite file, one
// per server URL, so commands after `login` need no token flag.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/client/migrations"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Session is a saved login.
type Session struct {
	ServerURL string
	UserName  string
	Token     string
	SavedAt   time.Time
}

type Store interface {
	Load(ctx context.Context, serverURL string) (*Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, serverURL string) error
}

type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RunMigrations applies the embedded session schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the session database at path.
func Open(ctx context.Context, path string) (*SQLiteStore, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return NewSQLiteStore(db), db, nil
}

// Load returns the session saved for serverURL, or common.ErrNotFound.
func (r *SQLiteStore) Load(ctx context.Context, serverURL string) (*Session, error) {
	s := &Session{ServerURL: serverURL}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_name, token, saved_at FROM sessions WHERE server_url = ?`, serverURL).
		Scan(&s.UserName, &s.Token, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session[%s]: %w", serverURL, err)
	}
	return s, nil
}

func (r *SQLiteStore) Save(ctx context.Context, s Session) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (server_url, user_name, token, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
			user_name = excluded.user_name,
			token = excluded.token,
			saved_at = excluded.saved_at
	`, s.ServerURL, s.UserName, s.Token, s.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to save session[%s]: %w", s.ServerURL, err)
	}
	return nil
}

func (r *SQLiteStore) Delete(ctx context.Context, serverURL string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE server_url = ?`, serverURL)
	if err != nil {
		return fmt.Errorf("failed to delete session[%s]: %w", serverURL, err)
	}
	return nil
}
