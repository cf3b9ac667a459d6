package collab

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names on the collaboration channel.
const (
	EventJoinNote        = "join-note"
	EventLeaveNote       = "leave-note"
	EventOp              = "op"
	EventCursorUpdate    = "cursor-update"
	EventInitContent     = "init-content"
	EventCollaborators   = "collaborators"
	EventRemoteOp        = "remote-op"
	EventCursorBroadcast = "cursor-broadcast"
	EventError           = "error"
)

type (
	InitContentPayload struct {
		Content string `json:"content"`
	}

	CollaboratorsPayload struct {
		Active []Collaborator `json:"active"`
	}

	RemoteOpPayload struct {
		UserID  string `json:"userId"`
		Content string `json:"content"`
	}

	CursorBroadcastPayload struct {
		UserID string `json:"userId"`
		Cursor any    `json:"cursor"`
	}
)

// Conn is the manager's handle on one client connection.
type Conn interface {
	ID() string
	// Emit sends an event to this connection only.
	Emit(event string, payload any)
	// EmitOthers sends an event to every other connection in a note's room.
	EmitOthers(noteID, event string, payload any)
	// JoinRoom and LeaveRoom adjust the transport-level room membership that
	// backs EmitOthers and RoomEmitter fan-out.
	JoinRoom(noteID string)
	LeaveRoom(noteID string)
}

// RoomEmitter sends an event to every connection in a note's room.
type RoomEmitter interface {
	EmitRoom(noteID, event string, payload any)
}

// Manager runs the per-connection collaboration lifecycle: a connection is
// bound to a subject once at handshake time, joins and leaves note rooms, and
// relays content and cursor events. Permissions are re-checked against the
// oracle on every mutation, never cached from join time. Edits are broadcast
// first and persisted asynchronously afterwards; a failed write is logged and
// never undoes the broadcast.
type Manager struct {
	registry *Registry
	oracle   Oracle
	rooms    RoomEmitter

	mu       sync.Mutex
	subjects map[string]string // connID -> subject
}

func NewManager(registry *Registry, oracle Oracle, rooms RoomEmitter) *Manager {
	return &Manager{
		registry: registry,
		oracle:   oracle,
		rooms:    rooms,
		subjects: make(map[string]string),
	}
}

// Bind records the authenticated subject for a connection. Called exactly once
// per connection, after the handshake credential has been verified.
func (m *Manager) Bind(connID, subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[connID] = subject
}

// Subject returns the subject bound to a connection.
func (m *Manager) Subject(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subject, ok := m.subjects[connID]
	return subject, ok
}

// Join admits a connection to a note room after an access check. The joining
// connection alone receives the current content snapshot; the whole room,
// including the joiner, receives the refreshed presence list.
func (m *Manager) Join(ctx context.Context, conn Conn, noteID string) {
	subject, ok := m.Subject(conn.ID())
	if !ok {
		conn.Emit(EventError, "auth required")
		return
	}

	log := logrus.WithFields(logrus.Fields{"note_id": noteID, "conn_id": conn.ID(), "subject": subject})

	access, err := m.oracle.Access(ctx, noteID, subject)
	if err != nil {
		log.WithError(err).Warn("Join rejected, note lookup failed")
		conn.Emit(EventError, "note not found")
		return
	}
	if !access.CanView() {
		log.Warn("Join rejected, no access")
		conn.Emit(EventError, "no access")
		return
	}

	content, err := m.oracle.Snapshot(ctx, noteID)
	if err != nil {
		log.WithError(err).Warn("Join rejected, snapshot failed")
		conn.Emit(EventError, "note not found")
		return
	}

	m.registry.Join(noteID, conn.ID(), subject)
	conn.JoinRoom(noteID)

	conn.Emit(EventInitContent, InitContentPayload{Content: content})
	m.rooms.EmitRoom(noteID, EventCollaborators, CollaboratorsPayload{Active: m.registry.Snapshot(noteID)})
	log.Debug("Connection joined note room")
}

// Leave removes a connection from a note room and rebroadcasts presence to
// whoever remains. Leaving a room the connection never joined is a no-op.
func (m *Manager) Leave(conn Conn, noteID string) {
	if !m.registry.Member(noteID, conn.ID()) {
		return
	}
	m.registry.Leave(noteID, conn.ID())
	conn.LeaveRoom(noteID)
	m.rooms.EmitRoom(noteID, EventCollaborators, CollaboratorsPayload{Active: m.registry.Snapshot(noteID)})
}

// Edit relays a full-content operation to the rest of the room and then
// persists it in the background. The edit permission is checked against the
// oracle on every call, so a role revoked after join takes effect immediately.
func (m *Manager) Edit(ctx context.Context, conn Conn, noteID, content string) {
	subject, ok := m.Subject(conn.ID())
	if !ok {
		conn.Emit(EventError, "auth required")
		return
	}

	log := logrus.WithFields(logrus.Fields{"note_id": noteID, "conn_id": conn.ID(), "subject": subject})

	access, err := m.oracle.Access(ctx, noteID, subject)
	if err != nil {
		log.WithError(err).Warn("Edit rejected, note lookup failed")
		conn.Emit(EventError, "note not found")
		return
	}
	if !access.CanEdit() {
		log.Warn("Edit rejected, no edit permission")
		conn.Emit(EventError, "no edit permission")
		return
	}

	conn.EmitOthers(noteID, EventRemoteOp, RemoteOpPayload{UserID: subject, Content: content})

	// Persistence is fire and forget: the broadcast above is already out, so a
	// failed write only gets logged. Last write wins.
	go func() {
		if err := m.oracle.ApplyEdit(context.Background(), noteID, content); err != nil {
			log.WithError(err).Error("Failed to persist edit")
		}
	}()
}

// Cursor relays an ephemeral cursor position to the rest of the room. Cursor
// events from connections that are not room members are dropped. Never persisted.
func (m *Manager) Cursor(conn Conn, noteID string, cursor any) {
	subject, ok := m.Subject(conn.ID())
	if !ok {
		return
	}
	if !m.registry.Member(noteID, conn.ID()) {
		return
	}
	conn.EmitOthers(noteID, EventCursorBroadcast, CursorBroadcastPayload{UserID: subject, Cursor: cursor})
}

// Disconnect tears a connection down: it is removed from every room it was in,
// each of those rooms gets a refreshed presence list, and the subject binding
// is dropped. The transport guarantees this fires for every connection.
func (m *Manager) Disconnect(conn Conn) {
	for _, noteID := range m.registry.LeaveAll(conn.ID()) {
		m.rooms.EmitRoom(noteID, EventCollaborators, CollaboratorsPayload{Active: m.registry.Snapshot(noteID)})
	}

	m.mu.Lock()
	delete(m.subjects, conn.ID())
	m.mu.Unlock()
}
