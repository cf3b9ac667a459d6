package core

import (
	"context"
	"time"
)

// Role is the access level a subject holds on a note it does not own.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

type (
	// ShareEntry grants one subject a role on a note. A note's owner never
	// appears in its own share list, and each subject appears at most once.
	ShareEntry struct {
		Subject   string    `json:"subject"`
		Role      Role      `json:"role"`
		InvitedAt time.Time `json:"invitedAt"`
	}

	// Note is a user-owned document. Content is an opaque serialized payload
	// (the editor stores stringified delta JSON); the server never interprets it.
	Note struct {
		ID         string       `json:"id"`
		Title      string       `json:"title"`
		Content    string       `json:"content,omitempty"`
		Owner      string       `json:"owner"`
		SharedWith []ShareEntry `json:"sharedWith"`
		CreatedAt  time.Time    `json:"createdAt"`
		UpdatedAt  time.Time    `json:"updatedAt"`
		Deleted    bool         `json:"deleted,omitempty"`
	}

	// Access is the resolved permission of one subject on one note.
	Access struct {
		IsOwner bool
		Role    Role // empty when the subject has no share entry
	}

	// NoteStore defines the persistence layer for notes.
	NoteStore interface {
		// CreateNote stores a new note and returns its generated ID.
		CreateNote(ctx context.Context, note *Note) (string, error)

		// GetNote returns a note by ID, including soft-deleted ones. Callers
		// decide whether a deleted note is visible for their operation.
		GetNote(ctx context.Context, id string) (*Note, error)

		// ListNotes returns the non-deleted notes a subject owns and the ones
		// shared with it. Content blobs are omitted to keep list responses light.
		ListNotes(ctx context.Context, subject string) (owned, shared []*Note, err error)

		// SaveNote persists the full current state of an existing note.
		SaveNote(ctx context.Context, note *Note) error
	}
)

// CanEdit reports whether this access level permits content mutation.
func (a Access) CanEdit() bool {
	return a.IsOwner || a.Role == RoleEditor
}

// CanView reports whether this access level permits reading the note.
func (a Access) CanView() bool {
	return a.IsOwner || a.Role == RoleViewer || a.Role == RoleEditor
}

// AccessFor resolves the access a subject holds on this note.
func (n *Note) AccessFor(subject string) Access {
	if n.Owner == subject {
		return Access{IsOwner: true}
	}
	for _, entry := range n.SharedWith {
		if entry.Subject == subject {
			return Access{Role: entry.Role}
		}
	}
	return Access{}
}

// Share upserts a share entry. The owner is never added to its own list.
func (n *Note) Share(subject string, role Role) {
	if subject == n.Owner {
		return
	}
	for i := range n.SharedWith {
		if n.SharedWith[i].Subject == subject {
			n.SharedWith[i].Role = role
			return
		}
	}
	n.SharedWith = append(n.SharedWith, ShareEntry{
		Subject:   subject,
		Role:      role,
		InvitedAt: time.Now(),
	})
}
