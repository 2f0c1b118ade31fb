// Package chat is the write path: room creation, message appends with the
// derived last-activity bump, and idempotent user materialization.
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/events"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/model"
	"github.com/fathima-sithara/chat-sync/internal/query"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

var ErrEmptyContent = errors.New("message content is empty")

type Service struct {
	store    store.Store
	query    *query.Layer
	producer *events.Producer  // kafka message.sent, nil-safe
	rooms    *events.Publisher // nats room.created, nil-safe
	log      *zap.SugaredLogger
}

func NewService(st store.Store, qry *query.Layer, producer *events.Producer, rooms *events.Publisher, log *zap.SugaredLogger) *Service {
	return &Service{store: st, query: qry, producer: producer, rooms: rooms, log: log}
}

type RoomSpec struct {
	Name        string
	Description string
	CreatedBy   string
	Members     []string
	IsPrivate   bool
}

// CreateRoom stores a new room with store-assigned timestamps and returns
// its key once the write is acknowledged. The creator is always part of the
// member set, whatever the caller passed.
func (s *Service) CreateRoom(ctx context.Context, spec RoomSpec) (string, error) {
	members := withMember(spec.Members, spec.CreatedBy)
	doc := store.Document{
		"name":            spec.Name,
		"created_by":      spec.CreatedBy,
		"members":         members,
		"is_private":      spec.IsPrivate,
		"created_at":      store.ServerTimestamp,
		"last_message_at": store.ServerTimestamp,
	}
	if spec.Description != "" {
		doc["description"] = spec.Description
	}
	id, err := s.store.Add(ctx, model.CollectionRooms, doc)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	metrics.RoomsCreated.Inc()
	if err := s.rooms.PublishRoomCreated(events.RoomCreatedEvent{
		RoomID:    id,
		Name:      spec.Name,
		CreatedBy: spec.CreatedBy,
		Members:   members,
		IsPrivate: spec.IsPrivate,
	}); err != nil {
		s.log.Warnw("publish room.created", "room_id", id, "err", err)
	}
	return id, nil
}

// SendMessage appends a message and then bumps the parent room's
// last_message_at. The two writes are sequential, not atomic: a failure
// after the first leaves a stored message whose room never saw the bump.
// In that case the message key is returned alongside the error.
//
// Nothing checks that roomID references an existing room; a message against
// a vanished room is stored and simply never read back.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID, content, msgType, fileURL string) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}
	if msgType == "" {
		msgType = model.TypeText
	}
	doc := store.Document{
		"room_id":    roomID,
		"sender_id":  senderID,
		"content":    content,
		"type":       msgType,
		"created_at": store.ServerTimestamp,
		"updated_at": store.ServerTimestamp,
	}
	if fileURL != "" {
		doc["file_url"] = fileURL
	}
	id, err := s.store.Add(ctx, model.CollectionMessages, doc)
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	metrics.MessagesSent.Inc()

	bump := store.Document{"last_message_at": store.ServerTimestamp}
	if err := s.store.Put(ctx, model.CollectionRooms, roomID, bump, true); err != nil {
		return id, fmt.Errorf("bump room activity: %w", err)
	}

	if err := s.producer.PublishMessageSent(ctx, map[string]any{
		"message_id": id,
		"room_id":    roomID,
		"sender_id":  senderID,
		"type":       msgType,
	}); err != nil {
		s.log.Warnw("publish message.sent", "message_id", id, "err", err)
	}
	return id, nil
}

type UserSpec struct {
	UID         string
	Email       string
	DisplayName string
	AvatarURL   string
}

// CreateUser materializes the user record for an identity. The write is a
// merge upsert keyed by the identity, so calling it again for the same uid
// updates the one record instead of duplicating it. An unset avatar is
// stripped from the outgoing document, never written as an explicit blank.
func (s *Service) CreateUser(ctx context.Context, spec UserSpec) error {
	if _, err := s.store.Get(ctx, model.CollectionUsers, spec.UID); err == nil {
		s.log.Infow("user record exists, merging", "user_id", spec.UID)
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Warnw("user existence check failed", "user_id", spec.UID, "err", err)
	}

	doc := store.Document{
		"email":        spec.Email,
		"display_name": spec.DisplayName,
		"created_at":   store.ServerTimestamp,
		"last_seen":    store.ServerTimestamp,
	}
	if spec.AvatarURL != "" {
		doc["avatar_url"] = spec.AvatarURL
	}
	if err := s.store.Put(ctx, model.CollectionUsers, spec.UID, doc, true); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// StartDirectChat returns the key of the private two-party room between
// userID and peerID, creating it only when no such room exists. Matching
// ignores the room name; only the exact two-member set counts.
func (s *Service) StartDirectChat(ctx context.Context, userID, peerID, name string) (string, error) {
	rooms, err := s.query.GetRoomsByMember(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("scan existing rooms: %w", err)
	}
	for _, r := range rooms {
		if r.IsPrivate && len(r.Members) == 2 && r.HasMember(userID) && r.HasMember(peerID) {
			return r.ID, nil
		}
	}
	return s.CreateRoom(ctx, RoomSpec{
		Name:      name,
		CreatedBy: userID,
		Members:   []string{userID, peerID},
		IsPrivate: true,
	})
}

func withMember(members []string, uid string) []string {
	out := make([]string, 0, len(members)+1)
	seen := make(map[string]bool, len(members)+1)
	for _, m := range append([]string{uid}, members...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
