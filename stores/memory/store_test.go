package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"realtime-notes/core"
)

func TestCreateNote_Success(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Title: "hello", Owner: "alice"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if id == "" {
		t.Error("CreateNote() returned empty ID")
	}
	// Verify the ID is a valid ULID format (26 characters)
	if len(id) != 26 {
		t.Errorf("CreateNote() returned invalid ID length: got %d, want 26", len(id))
	}
}

func TestGetNote_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.GetNote(context.Background(), "nonexistent-id")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetNote() error = %v, want ErrNotFound", err)
	}
}

func TestGetNote_ReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Title: "hello", Owner: "alice", Content: "v1"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	first, err := store.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	first.Content = "mutated without save"

	second, err := store.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if second.Content != "v1" {
		t.Errorf("unsaved mutation leaked into the store: content = %q", second.Content)
	}
}

func TestSaveNote_UpdatesContentAndShares(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Title: "hello", Owner: "alice"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	note, err := store.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	note.Content = "updated"
	note.Share("bob", core.RoleEditor)
	if err := store.SaveNote(ctx, note); err != nil {
		t.Fatalf("SaveNote() failed: %v", err)
	}

	saved, err := store.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if saved.Content != "updated" {
		t.Errorf("content = %q, want %q", saved.Content, "updated")
	}
	if len(saved.SharedWith) != 1 || saved.SharedWith[0].Subject != "bob" || saved.SharedWith[0].Role != core.RoleEditor {
		t.Errorf("sharedWith = %v, want bob as editor", saved.SharedWith)
	}
}

func TestSaveNote_Unknown(t *testing.T) {
	store := NewStore()

	err := store.SaveNote(context.Background(), &core.Note{ID: "ghost"})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("SaveNote() error = %v, want ErrNotFound", err)
	}
}

func TestShareUpsertKeepsOneEntryPerSubject(t *testing.T) {
	note := &core.Note{Owner: "alice"}
	note.Share("bob", core.RoleViewer)
	note.Share("bob", core.RoleEditor)

	if len(note.SharedWith) != 1 {
		t.Fatalf("sharedWith has %d entries, want 1", len(note.SharedWith))
	}
	if note.SharedWith[0].Role != core.RoleEditor {
		t.Errorf("role = %q, want editor after upsert", note.SharedWith[0].Role)
	}
}

func TestShareNeverAddsOwner(t *testing.T) {
	note := &core.Note{Owner: "alice"}
	note.Share("alice", core.RoleEditor)

	if len(note.SharedWith) != 0 {
		t.Errorf("owner was added to its own share list: %v", note.SharedWith)
	}
}

func TestListNotes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.CreateNote(ctx, &core.Note{Title: "mine", Owner: "alice", Content: "big blob"}); err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	sharedID, err := store.CreateNote(ctx, &core.Note{
		Title:      "theirs",
		Owner:      "bob",
		SharedWith: []core.ShareEntry{{Subject: "alice", Role: core.RoleViewer}},
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	deletedID, err := store.CreateNote(ctx, &core.Note{Title: "gone", Owner: "alice"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	deleted, _ := store.GetNote(ctx, deletedID)
	deleted.Deleted = true
	if err := store.SaveNote(ctx, deleted); err != nil {
		t.Fatalf("SaveNote() failed: %v", err)
	}

	owned, shared, err := store.ListNotes(ctx, "alice")
	if err != nil {
		t.Fatalf("ListNotes() failed: %v", err)
	}
	if len(owned) != 1 || owned[0].Title != "mine" {
		t.Errorf("owned = %v, want [mine]", owned)
	}
	if owned[0].Content != "" {
		t.Error("list response carries content blobs")
	}
	if len(shared) != 1 || shared[0].ID != sharedID {
		t.Errorf("shared = %v, want the note shared by bob", shared)
	}
}

func TestUserLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	user := &core.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"}
	id, err := store.CreateUser(ctx, user)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if user.Subject != id {
		t.Errorf("subject = %q, want the generated ID %q", user.Subject, id)
	}

	byEmail, err := store.FindUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail() failed: %v", err)
	}
	if byEmail.ID != id || byEmail.PasswordHash != "hash" {
		t.Errorf("FindUserByEmail() = %+v", byEmail)
	}

	bySubject, err := store.FindUserBySubject(ctx, user.Subject)
	if err != nil {
		t.Fatalf("FindUserBySubject() failed: %v", err)
	}
	if bySubject.Email != "alice@example.com" {
		t.Errorf("FindUserBySubject() email = %q", bySubject.Email)
	}

	if _, err := store.CreateUser(ctx, &core.User{Email: "alice@example.com"}); err == nil {
		t.Error("CreateUser() allowed a duplicate email")
	}
	if _, err := store.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindUserByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestRefreshTokenRevocation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	token := &core.RefreshToken{Token: "tok-1", Subject: "alice"}
	if err := store.SaveRefreshToken(ctx, token); err != nil {
		t.Fatalf("SaveRefreshToken() failed: %v", err)
	}

	if _, err := store.FindRefreshToken(ctx, "tok-1"); err != nil {
		t.Fatalf("FindRefreshToken() failed: %v", err)
	}

	if err := store.RevokeRefreshToken(ctx, "tok-1"); err != nil {
		t.Fatalf("RevokeRefreshToken() failed: %v", err)
	}
	if _, err := store.FindRefreshToken(ctx, "tok-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindRefreshToken() after revoke = %v, want ErrNotFound", err)
	}

	if err := store.RevokeRefreshToken(ctx, "unknown"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RevokeRefreshToken() on unknown token = %v, want ErrNotFound", err)
	}
}

func TestConcurrentNoteWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.CreateNote(ctx, &core.Note{Owner: "alice"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				note, err := store.GetNote(ctx, id)
				if err != nil {
					t.Errorf("GetNote() failed: %v", err)
					return
				}
				note.Content = fmt.Sprintf("writer-%d-%d", n, j)
				if err := store.SaveNote(ctx, note); err != nil {
					t.Errorf("SaveNote() failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if _, err := store.GetNote(ctx, id); err != nil {
		t.Fatalf("GetNote() after concurrent writes failed: %v", err)
	}
}
