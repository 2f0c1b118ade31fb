package model

import (
	"time"

	"github.com/fathima-sithara/chat-sync/internal/store"
)

// Decoding is deliberately tolerant: a stored document may predate the
// current schema or have been written by hand, so absent or mistyped fields
// decode to zero values instead of failing. Callers that order by a
// timestamp drop records whose timestamp decoded to zero.

func UserFromDocument(doc store.Document) *User {
	if doc == nil {
		return nil
	}
	return &User{
		ID:          asString(doc, "id"),
		Email:       asString(doc, "email"),
		DisplayName: asString(doc, "display_name"),
		AvatarURL:   asString(doc, "avatar_url"),
		CreatedAt:   asTime(doc, "created_at"),
		LastSeen:    asTime(doc, "last_seen"),
	}
}

func UsersFromDocuments(docs []store.Document) []User {
	out := make([]User, 0, len(docs))
	for _, d := range docs {
		if u := UserFromDocument(d); u != nil {
			out = append(out, *u)
		}
	}
	return out
}

func RoomFromDocument(doc store.Document) *Room {
	if doc == nil {
		return nil
	}
	return &Room{
		ID:            asString(doc, "id"),
		Name:          asString(doc, "name"),
		Description:   asString(doc, "description"),
		CreatedBy:     asString(doc, "created_by"),
		Members:       asStringSlice(doc, "members"),
		IsPrivate:     asBool(doc, "is_private"),
		CreatedAt:     asTime(doc, "created_at"),
		LastMessageAt: asTime(doc, "last_message_at"),
	}
}

func RoomsFromDocuments(docs []store.Document) []Room {
	out := make([]Room, 0, len(docs))
	for _, d := range docs {
		if r := RoomFromDocument(d); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func MessageFromDocument(doc store.Document) *Message {
	if doc == nil {
		return nil
	}
	return &Message{
		ID:        asString(doc, "id"),
		RoomID:    asString(doc, "room_id"),
		SenderID:  asString(doc, "sender_id"),
		Content:   asString(doc, "content"),
		Type:      asString(doc, "type"),
		FileURL:   asString(doc, "file_url"),
		CreatedAt: asTime(doc, "created_at"),
		UpdatedAt: asTime(doc, "updated_at"),
	}
}

func MessagesFromDocuments(docs []store.Document) []Message {
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		if m := MessageFromDocument(d); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func asString(doc store.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func asBool(doc store.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func asTime(doc store.Document, key string) time.Time {
	t, _ := doc[key].(time.Time)
	return t
}

func asStringSlice(doc store.Document, key string) []string {
	switch v := doc[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
