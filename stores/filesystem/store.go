package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"realtime-notes/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store. Notes, users and refresh
// tokens live as JSON files under their own subdirectories.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"notes", "users", "tokens"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create %s directory: %v", dir, err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) notePath(id string) string {
	return filepath.Join(s.basePath, "notes", id+".json")
}

func (s *fsStore) userPath(subject string) string {
	return filepath.Join(s.basePath, "users", subject+".json")
}

// tokenPath hashes the token value: raw JWTs are too unwieldy as filenames.
func (s *fsStore) tokenPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return filepath.Join(s.basePath, "tokens", hex.EncodeToString(sum[:])+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// NoteStore implementation

func (s *fsStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	note.ID = ulid.Make().String()
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{"note_id": note.ID, "path": s.notePath(note.ID)})
	if err := writeJSON(s.notePath(note.ID), note); err != nil {
		log.WithError(err).Error("Failed to create note")
		return "", err
	}
	log.Info("Note created successfully")
	return note.ID, nil
}

func (s *fsStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	var note core.Note
	if err := readJSON(s.notePath(id), &note); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNotFound)
		}
		logrus.WithField("note_id", id).WithError(err).Error("Failed to read note file")
		return nil, err
	}
	return &note, nil
}

func (s *fsStore) ListNotes(ctx context.Context, subject string) (owned, shared []*core.Note, err error) {
	notesDir := filepath.Join(s.basePath, "notes")
	files, err := os.ReadDir(notesDir)
	if err != nil {
		return nil, nil, err
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var note core.Note
		if err := readJSON(filepath.Join(notesDir, file.Name()), &note); err != nil {
			logrus.WithError(err).Warnf("Failed to read note file %s, skipping", file.Name())
			continue
		}
		if note.Deleted {
			continue
		}
		note.Content = "" // keep list responses light
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
	return owned, shared, nil
}

func (s *fsStore) SaveNote(ctx context.Context, note *core.Note) error {
	if _, err := os.Stat(s.notePath(note.ID)); os.IsNotExist(err) {
		return fmt.Errorf("note with id %s: %w", note.ID, core.ErrNotFound)
	}
	note.UpdatedAt = time.Now()
	if err := writeJSON(s.notePath(note.ID), note); err != nil {
		logrus.WithField("note_id", note.ID).WithError(err).Error("Failed to write note file")
		return err
	}
	return nil
}

// UserStore implementation

type storedUser struct {
	core.User
	Subject      string `json:"subject"`
	PasswordHash string `json:"passwordHash"`
}

func (s *fsStore) CreateUser(ctx context.Context, user *core.User) (string, error) {
	user.ID = ulid.Make().String()
	if user.Subject == "" {
		user.Subject = user.ID
	}
	user.CreatedAt = time.Now()

	record := storedUser{User: *user, Subject: user.Subject, PasswordHash: user.PasswordHash}
	if err := writeJSON(s.userPath(user.Subject), record); err != nil {
		logrus.WithField("subject", user.Subject).WithError(err).Error("Failed to write user file")
		return "", err
	}
	return user.ID, nil
}

func (s *fsStore) FindUserBySubject(ctx context.Context, subject string) (*core.User, error) {
	var record storedUser
	if err := readJSON(s.userPath(subject), &record); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user with subject %s: %w", subject, core.ErrNotFound)
		}
		return nil, err
	}
	user := record.User
	user.Subject = record.Subject
	user.PasswordHash = record.PasswordHash
	return &user, nil
}

func (s *fsStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	usersDir := filepath.Join(s.basePath, "users")
	files, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var record storedUser
		if err := readJSON(filepath.Join(usersDir, file.Name()), &record); err != nil {
			logrus.WithError(err).Warnf("Failed to read user file %s, skipping", file.Name())
			continue
		}
		if record.Email == email {
			user := record.User
			user.Subject = record.Subject
			user.PasswordHash = record.PasswordHash
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
}

// TokenStore implementation

type storedToken struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	Revoked   bool      `json:"revoked"`
}

func (s *fsStore) SaveRefreshToken(ctx context.Context, token *core.RefreshToken) error {
	record := storedToken{
		Token:     token.Token,
		Subject:   token.Subject,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
		Revoked:   token.Revoked,
	}
	return writeJSON(s.tokenPath(token.Token), record)
}

func (s *fsStore) FindRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	var record storedToken
	if err := readJSON(s.tokenPath(token), &record); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
		}
		return nil, err
	}
	if record.Revoked {
		return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	return &core.RefreshToken{
		Token:     record.Token,
		Subject:   record.Subject,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (s *fsStore) RevokeRefreshToken(ctx context.Context, token string) error {
	var record storedToken
	if err := readJSON(s.tokenPath(token), &record); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("refresh token: %w", core.ErrNotFound)
		}
		return err
	}
	record.Revoked = true
	return writeJSON(s.tokenPath(token), record)
}
