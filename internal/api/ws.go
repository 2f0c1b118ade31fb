package api

import (
	"context"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/model"
)

type wsEnvelope struct {
	Type     string          `json:"type"`
	Messages []model.Message `json:"messages,omitempty"`
	Rooms    []model.Room    `json:"rooms,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// handleWS streams subscription snapshots to one client. With room_id set
// it follows that room's messages, otherwise the caller's room list. The
// subscription is scoped to the connection: released when the socket goes
// away, so a torn-down view stops receiving stale updates.
func (s *Server) handleWS(conn *websocket.Conn) {
	defer conn.Close()

	uid, err := s.tokens.ParseAccess(conn.Query("token"))
	if err != nil {
		_ = conn.WriteJSON(wsEnvelope{Type: "error", Error: "invalid token"})
		return
	}

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx := context.Background()
	if s.cache != nil {
		_ = s.cache.SetPresence(ctx, uid, true)
		defer func() { _ = s.cache.SetPresence(context.Background(), uid, false) }()
	}

	// snapshot callbacks arrive on the store's goroutine while the read
	// loop owns this one; serialize the writes
	var writeMu sync.Mutex
	writeJSON := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}

	var release func()
	if roomID := conn.Query("room_id"); roomID != "" {
		release = s.query.SubscribeToMessages(ctx, roomID, int64(s.cfg.Query.MessageLimit),
			func(msgs []model.Message) {
				writeJSON(wsEnvelope{Type: "messages", Messages: msgs})
			},
			func(err error) {
				writeJSON(wsEnvelope{Type: "error", Error: err.Error()})
			})
	} else {
		release = s.query.SubscribeToRooms(ctx, uid,
			func(rooms []model.Room) {
				writeJSON(wsEnvelope{Type: "rooms", Rooms: rooms})
			},
			func(err error) {
				writeJSON(wsEnvelope{Type: "error", Error: err.Error()})
			})
	}
	defer release()

	// drain until the client goes away; inbound frames are not a command
	// channel, writes go through the REST surface
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
