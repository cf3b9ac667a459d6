package collab

import (
	"sync"
	"time"
)

type member struct {
	subject  string
	joinedAt time.Time
}

// Collaborator is one entry of a room's presence list as sent to clients.
type Collaborator struct {
	UserID string `json:"userId"`
}

// Registry tracks which connections are joined to which note rooms. It is the
// only shared mutable state touched by concurrent event handlers, so every
// operation takes the lock. A room exists exactly as long as it has members;
// an empty room and an absent room are indistinguishable to callers.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]member // noteID -> connID -> member
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]member)}
}

// Join records a connection's membership in a note room, creating the room if
// needed. Joining a room the connection is already in overwrites the entry.
func (r *Registry) Join(noteID, connID, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[noteID]
	if !ok {
		room = make(map[string]member)
		r.rooms[noteID] = room
	}
	room[connID] = member{subject: subject, joinedAt: time.Now()}
}

// Leave removes a connection from a note room. Leaving a room the connection
// is not in is a no-op.
func (r *Registry) Leave(noteID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[noteID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, noteID)
	}
}

// LeaveAll removes a connection from every room it is in and returns the note
// IDs of the rooms it was removed from, so presence can be rebroadcast there.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for noteID, room := range r.rooms {
		if _, ok := room[connID]; !ok {
			continue
		}
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, noteID)
		}
		affected = append(affected, noteID)
	}
	return affected
}

// Snapshot returns the current presence list of a note room. Iteration order
// is not meaningful. An unknown note ID yields an empty list.
func (r *Registry) Snapshot(noteID string) []Collaborator {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[noteID]
	active := make([]Collaborator, 0, len(room))
	for _, m := range room {
		active = append(active, Collaborator{UserID: m.subject})
	}
	return active
}

// Member reports whether a connection is currently joined to a note room.
func (r *Registry) Member(noteID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rooms[noteID][connID]
	return ok
}
