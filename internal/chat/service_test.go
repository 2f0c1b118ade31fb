package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/chat"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/model"
	"github.com/fathima-sithara/chat-sync/internal/query"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

func newService(t *testing.T) (*chat.Service, *query.Layer, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.SetClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
	log := zap.NewNop().Sugar()
	qry := query.NewLayer(s, log)
	return chat.NewService(s, qry, nil, nil, log), qry, s
}

func TestCreateRoomRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, qry, _ := newService(t)

	id, err := svc.CreateRoom(ctx, chat.RoomSpec{
		Name:      "general",
		CreatedBy: "alice",
		Members:   []string{"bob"},
		IsPrivate: false,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	room, err := qry.GetRoomByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, id, room.ID)
	assert.Equal(t, "general", room.Name)
	assert.True(t, room.HasMember("alice"), "creator must be in the member set")
	assert.True(t, room.HasMember("bob"))
	assert.False(t, room.CreatedAt.IsZero())
	assert.False(t, room.LastMessageAt.IsZero())
}

func TestSendMessageBumpsRoomActivity(t *testing.T) {
	ctx := context.Background()
	svc, qry, _ := newService(t)

	roomID, err := svc.CreateRoom(ctx, chat.RoomSpec{
		Name:      "direct",
		CreatedBy: "a",
		Members:   []string{"a", "b"},
		IsPrivate: true,
	})
	require.NoError(t, err)

	before, err := qry.GetRoomByID(ctx, roomID)
	require.NoError(t, err)

	msgID, err := svc.SendMessage(ctx, roomID, "a", "hi", "", "")
	require.NoError(t, err)

	msg, err := qry.GetMessageByID(ctx, msgID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, roomID, msg.RoomID)
	assert.Equal(t, "a", msg.SenderID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, model.TypeText, msg.Type, "empty type defaults to text")

	after, err := qry.GetRoomByID(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, after.LastMessageAt.After(before.LastMessageAt),
		"last_message_at must strictly increase")

	rooms, err := qry.GetRoomsByMember(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].LastMessageAt.Equal(after.LastMessageAt))
}

func TestWritePathCounters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	roomsBefore := testutil.ToFloat64(metrics.RoomsCreated)
	msgsBefore := testutil.ToFloat64(metrics.MessagesSent)

	roomID, err := svc.CreateRoom(ctx, chat.RoomSpec{Name: "r", CreatedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, roomsBefore+1, testutil.ToFloat64(metrics.RoomsCreated))

	_, err = svc.SendMessage(ctx, roomID, "a", "hi", "", "")
	require.NoError(t, err)
	assert.Equal(t, msgsBefore+1, testutil.ToFloat64(metrics.MessagesSent))

	// a rejected message never counts
	_, err = svc.SendMessage(ctx, roomID, "a", "", "", "")
	require.Error(t, err)
	assert.Equal(t, msgsBefore+1, testutil.ToFloat64(metrics.MessagesSent))
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.SendMessage(context.Background(), "r1", "a", "", "", "")
	assert.ErrorIs(t, err, chat.ErrEmptyContent)
}

func TestSendMessageStripsEmptyFileURL(t *testing.T) {
	ctx := context.Background()
	svc, _, s := newService(t)

	roomID, err := svc.CreateRoom(ctx, chat.RoomSpec{Name: "r", CreatedBy: "a"})
	require.NoError(t, err)

	plainID, err := svc.SendMessage(ctx, roomID, "a", "text only", model.TypeText, "")
	require.NoError(t, err)
	doc, err := s.Get(ctx, model.CollectionMessages, plainID)
	require.NoError(t, err)
	_, present := doc["file_url"]
	assert.False(t, present, "empty file_url must be stripped, not stored blank")

	fileID, err := svc.SendMessage(ctx, roomID, "a", "see attached", model.TypeFile, "https://cdn/x.pdf")
	require.NoError(t, err)
	doc, err = s.Get(ctx, model.CollectionMessages, fileID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.pdf", doc["file_url"])
}

func TestCreateUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, qry, s := newService(t)

	spec := chat.UserSpec{UID: "u1", Email: "a@b.c", DisplayName: "Alice"}
	require.NoError(t, svc.CreateUser(ctx, spec))

	spec.DisplayName = "Alice B"
	require.NoError(t, svc.CreateUser(ctx, spec))

	users, err := qry.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1, "second call must update, not duplicate")
	assert.Equal(t, "Alice B", users[0].DisplayName)
	assert.Equal(t, "a@b.c", users[0].Email)

	// an unset avatar never reaches the store as an explicit absence
	doc, err := s.Get(ctx, model.CollectionUsers, "u1")
	require.NoError(t, err)
	_, present := doc["avatar_url"]
	assert.False(t, present)
}

func TestStartDirectChatDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc, qry, _ := newService(t)

	first, err := svc.StartDirectChat(ctx, "a", "b", "Bob")
	require.NoError(t, err)

	// same pair again, either direction, reuses the room
	again, err := svc.StartDirectChat(ctx, "a", "b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	reverse, err := svc.StartDirectChat(ctx, "b", "a", "Alice")
	require.NoError(t, err)
	assert.Equal(t, first, reverse)

	// a different pair gets its own room
	other, err := svc.StartDirectChat(ctx, "a", "c", "Carol")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	room, err := qry.GetRoomByID(ctx, first)
	require.NoError(t, err)
	assert.True(t, room.IsPrivate)
	assert.Len(t, room.Members, 2)
}

func TestStartDirectChatIgnoresGroupRooms(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	// a public room containing both members is not a direct chat
	_, err := svc.CreateRoom(ctx, chat.RoomSpec{
		Name:      "everyone",
		CreatedBy: "a",
		Members:   []string{"a", "b"},
		IsPrivate: false,
	})
	require.NoError(t, err)

	direct, err := svc.StartDirectChat(ctx, "a", "b", "Bob")
	require.NoError(t, err)

	rooms, err := svc.StartDirectChat(ctx, "a", "b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, direct, rooms)
}
