package socket

import (
	"context"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog"

	"starmatch_server/models"
)

const namespace = "/"

// Hub pushes interaction events to connected clients. Each client joins the
// room of its own user id and receives the events addressed to it.
type Hub struct {
	server *socketio.Server
	log    zerolog.Logger
}

// RoomFor returns the room a user's clients join.
func RoomFor(userID string) string {
	return "user:" + userID
}

// NewHub initializes the Socket.IO server and its handlers
func NewHub(log zerolog.Logger) *Hub {
	server := socketio.NewServer(nil)
	h := &Hub{server: server, log: log}

	server.OnConnect(namespace, func(c socketio.Conn) error {
		log.Debug().Str("socket", c.ID()).Msg("socket connected")
		return nil
	})

	server.OnEvent(namespace, "join", func(c socketio.Conn, data map[string]string) {
		userID := data["userId"]
		if userID == "" {
			log.Warn().Str("socket", c.ID()).Msg("join without userId")
			return
		}
		c.Join(RoomFor(userID))
		log.Debug().Str("socket", c.ID()).Str("userId", userID).Msg("socket joined")
	})

	server.OnError(namespace, func(c socketio.Conn, err error) {
		log.Warn().Err(err).Msg("socket error")
	})

	server.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		log.Debug().Str("socket", c.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	return h
}

// Serve runs the socket event loop until Close.
func (h *Hub) Serve() {
	if err := h.server.Serve(); err != nil {
		h.log.Error().Err(err).Msg("socket server stopped")
	}
}

func (h *Hub) Close() error {
	return h.server.Close()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.server.ServeHTTP(w, r)
}

// Publish sends evt to the recipient's room; matches go to both users.
func (h *Hub) Publish(_ context.Context, evt models.InteractionEvent) error {
	rooms := []string{RoomFor(evt.To)}
	if evt.Mutual {
		rooms = append(rooms, RoomFor(evt.From))
	}
	for _, room := range rooms {
		if !h.server.BroadcastToRoom(namespace, room, evt.Kind, evt) {
			h.log.Debug().Str("room", room).Msg("no socket namespace to broadcast on")
		}
	}
	return nil
}
