package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"realtime-notes/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements NoteStore, UserStore and TokenStore in memory.
type memStore struct {
	mu     sync.RWMutex
	notes  map[string]*core.Note
	users  map[string]*core.User // keyed by subject
	tokens map[string]*core.RefreshToken
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		notes:  make(map[string]*core.Note),
		users:  make(map[string]*core.User),
		tokens: make(map[string]*core.RefreshToken),
	}
}

// cloneNote copies a note so callers can mutate the result freely.
func cloneNote(n *core.Note) *core.Note {
	c := *n
	c.SharedWith = append([]core.ShareEntry(nil), n.SharedWith...)
	return &c
}

func (s *memStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note.ID = ulid.Make().String()
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now
	s.notes[note.ID] = cloneNote(note)

	logrus.WithFields(logrus.Fields{"note_id": note.ID, "owner": note.Owner}).Debug("Note created")
	return note.ID, nil
}

func (s *memStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNotFound)
	}
	return cloneNote(note), nil
}

func (s *memStore) ListNotes(ctx context.Context, subject string) (owned, shared []*core.Note, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, note := range s.notes {
		if note.Deleted {
			continue
		}
		listNote := cloneNote(note)
		listNote.Content = "" // keep list responses light
		if note.Owner == subject {
			owned = append(owned, listNote)
			continue
		}
		for _, entry := range note.SharedWith {
			if entry.Subject == subject {
				shared = append(shared, listNote)
				break
			}
		}
	}
	return owned, shared, nil
}

func (s *memStore) SaveNote(ctx context.Context, note *core.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[note.ID]
	if !ok {
		return fmt.Errorf("note with id %s: %w", note.ID, core.ErrNotFound)
	}
	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = time.Now()
	s.notes[note.ID] = cloneNote(note)
	return nil
}

func (s *memStore) CreateUser(ctx context.Context, user *core.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = ulid.Make().String()
	if user.Subject == "" {
		user.Subject = user.ID
	}
	user.CreatedAt = time.Now()

	for _, existing := range s.users {
		if user.Email != "" && existing.Email == user.Email {
			return "", fmt.Errorf("email %s already registered", user.Email)
		}
	}

	copied := *user
	s.users[user.Subject] = &copied
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "subject": user.Subject}).Debug("User created")
	return user.ID, nil
}

func (s *memStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
}

func (s *memStore) FindUserBySubject(ctx context.Context, subject string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[subject]
	if !ok {
		return nil, fmt.Errorf("user with subject %s: %w", subject, core.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (s *memStore) SaveRefreshToken(ctx context.Context, token *core.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *token
	s.tokens[token.Token] = &copied
	return nil
}

func (s *memStore) FindRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tokens[token]
	if !ok || stored.Revoked {
		return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	copied := *stored
	return &copied, nil
}

func (s *memStore) RevokeRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token]
	if !ok {
		return fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	stored.Revoked = true
	return nil
}
