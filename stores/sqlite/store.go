package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"realtime-notes/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	noteTableStmt := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		owner TEXT NOT NULL,
		shared_with TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted INTEGER NOT NULL DEFAULT 0
	);`
	if _, err = db.Exec(noteTableStmt); err != nil {
		log.Fatalf("failed to create notes table: %v", err)
	}

	userTableStmt := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL UNIQUE,
		name TEXT,
		email TEXT,
		password_hash TEXT,
		created_at DATETIME
	);`
	if _, err = db.Exec(userTableStmt); err != nil {
		log.Fatalf("failed to create users table: %v", err)
	}

	tokenTableStmt := `
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		expires_at DATETIME,
		created_at DATETIME,
		revoked INTEGER NOT NULL DEFAULT 0
	);`
	if _, err = db.Exec(tokenTableStmt); err != nil {
		log.Fatalf("failed to create refresh_tokens table: %v", err)
	}

	return &sqliteStore{db}
}

func marshalShares(entries []core.ShareEntry) (string, error) {
	if len(entries) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalShares(data string) ([]core.ShareEntry, error) {
	if data == "" {
		return nil, nil
	}
	var entries []core.ShareEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// NoteStore implementation

func (s *sqliteStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	note.ID = ulid.Make().String()
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	shares, err := marshalShares(note.SharedWith)
	if err != nil {
		return "", err
	}

	log := logrus.WithFields(logrus.Fields{"note_id": note.ID, "owner": note.Owner})
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO notes (id, title, content, owner, shared_with, created_at, updated_at, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, 0)",
		note.ID, note.Title, note.Content, note.Owner, shares, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		log.WithError(err).Error("Failed to create note")
		return "", err
	}
	log.Info("Note created successfully")
	return note.ID, nil
}

func (s *sqliteStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)

	var note core.Note
	var shares string
	var deleted int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, owner, shared_with, created_at, updated_at, deleted FROM notes WHERE id = ?", id).
		Scan(&note.ID, &note.Title, &note.Content, &note.Owner, &shares, &note.CreatedAt, &note.UpdatedAt, &deleted)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Note with specified ID not found")
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve note")
		return nil, err
	}
	note.Deleted = deleted != 0
	if note.SharedWith, err = unmarshalShares(shares); err != nil {
		log.WithError(err).Error("Failed to decode share list")
		return nil, err
	}
	return &note, nil
}

func (s *sqliteStore) ListNotes(ctx context.Context, subject string) (owned, shared []*core.Note, err error) {
	// Share entries live in a JSON column, so membership is filtered in Go
	// rather than in SQL.
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, owner, shared_with, created_at, updated_at FROM notes WHERE deleted = 0")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var note core.Note
		var shares string
		if err := rows.Scan(&note.ID, &note.Title, &note.Owner, &shares, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, nil, err
		}
		if note.SharedWith, err = unmarshalShares(shares); err != nil {
			return nil, nil, err
		}
		if note.Owner == subject {
			owned = append(owned, &note)
			continue
		}
		for _, entry := range note.SharedWith {
			if entry.Subject == subject {
				shared = append(shared, &note)
				break
			}
		}
	}
	return owned, shared, rows.Err()
}

func (s *sqliteStore) SaveNote(ctx context.Context, note *core.Note) error {
	shares, err := marshalShares(note.SharedWith)
	if err != nil {
		return err
	}
	note.UpdatedAt = time.Now()

	deleted := 0
	if note.Deleted {
		deleted = 1
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, shared_with = ?, updated_at = ?, deleted = ? WHERE id = ?",
		note.Title, note.Content, shares, note.UpdatedAt, deleted, note.ID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"note_id": note.ID}).WithError(err).Error("Failed to save note")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("note with id %s: %w", note.ID, core.ErrNotFound)
	}
	return nil
}

// UserStore implementation

func (s *sqliteStore) CreateUser(ctx context.Context, user *core.User) (string, error) {
	user.ID = ulid.Make().String()
	if user.Subject == "" {
		user.Subject = user.ID
	}
	user.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, subject, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Subject, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		logrus.WithField("subject", user.Subject).WithError(err).Error("Failed to create user")
		return "", err
	}
	return user.ID, nil
}

func (s *sqliteStore) findUser(ctx context.Context, where, arg string) (*core.User, error) {
	var user core.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, subject, name, email, password_hash, created_at FROM users WHERE "+where+" = ?", arg).
		Scan(&user.ID, &user.Subject, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user: %w", core.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *sqliteStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findUser(ctx, "email", email)
}

func (s *sqliteStore) FindUserBySubject(ctx context.Context, subject string) (*core.User, error) {
	return s.findUser(ctx, "subject", subject)
}

// TokenStore implementation

func (s *sqliteStore) SaveRefreshToken(ctx context.Context, token *core.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, subject, expires_at, created_at, revoked) VALUES (?, ?, ?, ?, 0)",
		token.Token, token.Subject, token.ExpiresAt, token.CreatedAt)
	return err
}

func (s *sqliteStore) FindRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	var stored core.RefreshToken
	var revoked int
	err := s.db.QueryRowContext(ctx,
		"SELECT token, subject, expires_at, created_at, revoked FROM refresh_tokens WHERE token = ?", token).
		Scan(&stored.Token, &stored.Subject, &stored.ExpiresAt, &stored.CreatedAt, &revoked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
		}
		return nil, err
	}
	if revoked != 0 {
		return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	stored.Revoked = false
	return &stored, nil
}

func (s *sqliteStore) RevokeRefreshToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = 1 WHERE token = ?", token)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	return nil
}
