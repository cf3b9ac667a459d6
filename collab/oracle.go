package collab

import (
	"context"
	"time"

	"realtime-notes/core"
)

// Oracle is the session manager's view of the document authority: role
// lookups, content snapshots, and best-effort persistence of edits.
type Oracle interface {
	// Access resolves the permission a subject holds on a note. Returns
	// core.ErrNotFound when the note is missing or soft-deleted.
	Access(ctx context.Context, noteID, subject string) (core.Access, error)

	// Snapshot returns the note's current content blob. Returns
	// core.ErrNotFound when the note is missing or soft-deleted.
	Snapshot(ctx context.Context, noteID string) (string, error)

	// ApplyEdit overwrites the note's content (last write wins).
	ApplyEdit(ctx context.Context, noteID, content string) error
}

// noteOracle answers access and content questions from the note store.
type noteOracle struct {
	notes core.NoteStore
}

// NewOracle returns an Oracle backed by the given note store.
func NewOracle(notes core.NoteStore) Oracle {
	return &noteOracle{notes: notes}
}

func (o *noteOracle) get(ctx context.Context, noteID string) (*core.Note, error) {
	note, err := o.notes.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.Deleted {
		return nil, core.ErrNotFound
	}
	return note, nil
}

func (o *noteOracle) Access(ctx context.Context, noteID, subject string) (core.Access, error) {
	note, err := o.get(ctx, noteID)
	if err != nil {
		return core.Access{}, err
	}
	return note.AccessFor(subject), nil
}

func (o *noteOracle) Snapshot(ctx context.Context, noteID string) (string, error) {
	note, err := o.get(ctx, noteID)
	if err != nil {
		return "", err
	}
	return note.Content, nil
}

func (o *noteOracle) ApplyEdit(ctx context.Context, noteID, content string) error {
	note, err := o.get(ctx, noteID)
	if err != nil {
		return err
	}
	note.Content = content
	note.UpdatedAt = time.Now()
	return o.notes.SaveNote(ctx, note)
}
