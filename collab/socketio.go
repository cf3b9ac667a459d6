package collab

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// VerifyFunc validates a bearer credential and returns the stable subject it
// asserts. Any failure is treated the same way: the connection is rejected.
type VerifyFunc func(token string) (subject string, err error)

func noteRoom(noteID string) socketio.Room {
	return socketio.Room("note:" + noteID)
}

type socketConn struct {
	socket *socketio.Socket
}

func (c socketConn) ID() string {
	return string(c.socket.Id())
}

func (c socketConn) Emit(event string, payload any) {
	c.socket.Emit(event, payload)
}

func (c socketConn) EmitOthers(noteID, event string, payload any) {
	c.socket.Broadcast().To(noteRoom(noteID)).Emit(event, payload)
}

func (c socketConn) JoinRoom(noteID string) {
	c.socket.Join(noteRoom(noteID))
}

func (c socketConn) LeaveRoom(noteID string) {
	c.socket.Leave(noteRoom(noteID))
}

type serverRooms struct {
	srv *socketio.Server
}

func (r serverRooms) EmitRoom(noteID, event string, payload any) {
	r.srv.In(noteRoom(noteID)).Emit(event, payload)
}

// handshakeToken pulls the bearer token out of the socket.io handshake
// auth payload ({ token: "..." }).
func handshakeToken(socket *socketio.Socket) string {
	auth, ok := socket.Handshake().Auth.(map[string]any)
	if !ok {
		return ""
	}
	token, _ := auth["token"].(string)
	return token
}

// payloadMap decodes the first event argument as a JSON object. Events with a
// missing or malformed payload yield nil and are dropped by the callers.
func payloadMap(datas []any) map[string]any {
	if len(datas) == 0 {
		return nil
	}
	m, _ := datas[0].(map[string]any)
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// NewServer builds the socket.io server for the collaboration channel and the
// session manager driving it. The handshake must carry a verifiable token or
// the connection is refused before any event handler runs; afterwards the
// manager owns the whole lifecycle.
func NewServer(registry *Registry, oracle Oracle, verify VerifyFunc) (*socketio.Server, *Manager) {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)
	manager := NewManager(registry, oracle, serverRooms{srv: srv})

	srv.Use(func(socket *socketio.Socket, next func(*socketio.ExtendedError)) {
		token := handshakeToken(socket)
		if token == "" {
			next(socketio.NewExtendedError("auth required", nil))
			return
		}
		subject, err := verify(token)
		if err != nil {
			logrus.WithField("conn_id", socket.Id()).WithError(err).Warn("Rejected socket handshake")
			next(socketio.NewExtendedError("invalid token", nil))
			return
		}
		manager.Bind(string(socket.Id()), subject)
		next(nil)
	})

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		conn := socketConn{socket: socket}
		subject, _ := manager.Subject(conn.ID())
		logrus.WithFields(logrus.Fields{"conn_id": conn.ID(), "subject": subject}).Debug("Socket connected")

		socket.On(EventJoinNote, func(datas ...any) {
			noteID := stringField(payloadMap(datas), "noteId")
			if noteID == "" {
				socket.Emit(EventError, "invalid payload")
				return
			}
			manager.Join(context.Background(), conn, noteID)
		})

		socket.On(EventLeaveNote, func(datas ...any) {
			noteID := stringField(payloadMap(datas), "noteId")
			if noteID == "" {
				return
			}
			manager.Leave(conn, noteID)
		})

		socket.On(EventOp, func(datas ...any) {
			payload := payloadMap(datas)
			noteID := stringField(payload, "noteId")
			if noteID == "" {
				socket.Emit(EventError, "invalid payload")
				return
			}
			content, ok := payload["content"].(string)
			if !ok {
				socket.Emit(EventError, "invalid payload")
				return
			}
			manager.Edit(context.Background(), conn, noteID, content)
		})

		socket.On(EventCursorUpdate, func(datas ...any) {
			payload := payloadMap(datas)
			noteID := stringField(payload, "noteId")
			if noteID == "" {
				return
			}
			manager.Cursor(conn, noteID, payload["cursor"])
		})

		socket.On("disconnecting", func(datas ...any) {
			manager.Disconnect(conn)
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
		})
	})

	return srv, manager
}
