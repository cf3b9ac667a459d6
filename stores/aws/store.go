package aws

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"realtime-notes/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func (s *s3Store) getObject(ctx context.Context, key string, v any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to get object %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %v", key, err)
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) putObject(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal object %s: %v", key, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %v", key, err)
	}
	return nil
}

func noteKey(id string) (string, error) {
	// Sanitize the id to prevent path traversal: it must be a simple name.
	if id == "" || path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid note id")
	}
	return path.Join("notes", id), nil
}

func userKey(subject string) string {
	return path.Join("users", subject)
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return path.Join("tokens", hex.EncodeToString(sum[:]))
}

// NoteStore implementation

func (s *s3Store) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	note.ID = ulid.Make().String()
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	key, err := noteKey(note.ID)
	if err != nil {
		return "", err
	}
	if err := s.putObject(ctx, key, note); err != nil {
		return "", err
	}
	return note.ID, nil
}

func (s *s3Store) GetNote(ctx context.Context, id string) (*core.Note, error) {
	key, err := noteKey(id)
	if err != nil {
		return nil, err
	}
	var note core.Note
	if err := s.getObject(ctx, key, &note); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return &note, nil
}

func (s *s3Store) ListNotes(ctx context.Context, subject string) (owned, shared []*core.Note, err error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("notes/"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list notes: %v", err)
	}

	for _, object := range output.Contents {
		var note core.Note
		if err := s.getObject(ctx, *object.Key, &note); err != nil {
			log.Printf("warn: failed to read note object %s: %v", *object.Key, err)
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

func (s *s3Store) SaveNote(ctx context.Context, note *core.Note) error {
	key, err := noteKey(note.ID)
	if err != nil {
		return err
	}
	// The note must already exist; Save never creates.
	var existing core.Note
	if err := s.getObject(ctx, key, &existing); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("note with id %s: %w", note.ID, core.ErrNotFound)
		}
		return err
	}
	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = time.Now()
	return s.putObject(ctx, key, note)
}

// UserStore implementation

type storedUser struct {
	core.User
	Subject      string `json:"subject"`
	PasswordHash string `json:"passwordHash"`
}

func (s *s3Store) CreateUser(ctx context.Context, user *core.User) (string, error) {
	user.ID = ulid.Make().String()
	if user.Subject == "" {
		user.Subject = user.ID
	}
	user.CreatedAt = time.Now()

	record := storedUser{User: *user, Subject: user.Subject, PasswordHash: user.PasswordHash}
	if err := s.putObject(ctx, userKey(user.Subject), record); err != nil {
		return "", err
	}
	return user.ID, nil
}

func (s *s3Store) FindUserBySubject(ctx context.Context, subject string) (*core.User, error) {
	var record storedUser
	if err := s.getObject(ctx, userKey(subject), &record); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("user with subject %s: %w", subject, core.ErrNotFound)
		}
		return nil, err
	}
	user := record.User
	user.Subject = record.Subject
	user.PasswordHash = record.PasswordHash
	return &user, nil
}

func (s *s3Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("users/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}

	for _, object := range output.Contents {
		var record storedUser
		if err := s.getObject(ctx, *object.Key, &record); err != nil {
			log.Printf("warn: failed to read user object %s: %v", *object.Key, err)
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

func (s *s3Store) SaveRefreshToken(ctx context.Context, token *core.RefreshToken) error {
	return s.putObject(ctx, tokenKey(token.Token), token)
}

func (s *s3Store) FindRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	var stored core.RefreshToken
	if err := s.getObject(ctx, tokenKey(token), &stored); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
		}
		return nil, err
	}
	if stored.Revoked {
		return nil, fmt.Errorf("refresh token: %w", core.ErrNotFound)
	}
	return &stored, nil
}

func (s *s3Store) RevokeRefreshToken(ctx context.Context, token string) error {
	var stored core.RefreshToken
	if err := s.getObject(ctx, tokenKey(token), &stored); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("refresh token: %w", core.ErrNotFound)
		}
		return err
	}
	stored.Revoked = true
	return s.putObject(ctx, tokenKey(token), &stored)
}
