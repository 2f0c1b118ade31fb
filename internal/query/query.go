// Package query is the read side of the sync layer: one-shot fetches and
// long-lived subscriptions over the three collections, including the
// missing-index fallback for ordered message queries.
package query

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/model"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

type Layer struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewLayer(st store.Store, log *zap.SugaredLogger) *Layer {
	return &Layer{store: st, log: log}
}

// GetUserByID returns nil without error when no record exists; absence on a
// point lookup is not a failure.
func (l *Layer) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	doc, err := l.store.Get(ctx, model.CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.UserFromDocument(doc), nil
}

func (l *Layer) GetAllUsers(ctx context.Context) ([]model.User, error) {
	docs, err := l.store.Query(ctx, model.CollectionUsers, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	return model.UsersFromDocuments(docs), nil
}

// GetRoomByID returns nil without error when no record exists.
func (l *Layer) GetRoomByID(ctx context.Context, roomID string) (*model.Room, error) {
	doc, err := l.store.Get(ctx, model.CollectionRooms, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.RoomFromDocument(doc), nil
}

func (l *Layer) GetRoomsByMember(ctx context.Context, userID string) ([]model.Room, error) {
	docs, err := l.store.Query(ctx, model.CollectionRooms,
		[]store.Filter{store.Contains("members", userID)}, nil, 0)
	if err != nil {
		return nil, err
	}
	return model.RoomsFromDocuments(docs), nil
}

func (l *Layer) GetPublicRooms(ctx context.Context) ([]model.Room, error) {
	docs, err := l.store.Query(ctx, model.CollectionRooms,
		[]store.Filter{store.Eq("is_private", false)}, nil, 0)
	if err != nil {
		return nil, err
	}
	return model.RoomsFromDocuments(docs), nil
}

func (l *Layer) GetMessageByID(ctx context.Context, messageID string) (*model.Message, error) {
	doc, err := l.store.Get(ctx, model.CollectionMessages, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.MessageFromDocument(doc), nil
}

func (l *Layer) GetMessagesByRoom(ctx context.Context, roomID string, limit int64) ([]model.Message, error) {
	return l.fetchMessagesDesc(ctx, store.Eq("room_id", roomID), limit)
}

func (l *Layer) GetMessagesByUser(ctx context.Context, userID string, limit int64) ([]model.Message, error) {
	return l.fetchMessagesDesc(ctx, store.Eq("sender_id", userID), limit)
}

// fetchMessagesDesc tries the indexed path first. When the store reports a
// missing composite index it refetches the same filter unordered, sorts
// newest-first in memory and truncates; any other failure propagates
// unchanged. Both paths yield identical ordering for the same data.
func (l *Layer) fetchMessagesDesc(ctx context.Context, filter store.Filter, limit int64) ([]model.Message, error) {
	order := &store.Order{Field: "created_at", Desc: true}
	docs, err := l.store.Query(ctx, model.CollectionMessages, []store.Filter{filter}, order, limit)
	if err == nil {
		return model.MessagesFromDocuments(docs), nil
	}
	if !errors.Is(err, store.ErrMissingIndex) {
		return nil, err
	}
	l.log.Warnw("composite index not provisioned, refetching unordered",
		"collection", model.CollectionMessages, "filter", filter.Field)

	docs, err = l.store.Query(ctx, model.CollectionMessages, []store.Filter{filter}, nil, 0)
	if err != nil {
		return nil, err
	}
	msgs := model.MessagesFromDocuments(docs)
	sortMessagesDesc(msgs)
	if limit > 0 && int64(len(msgs)) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// SubscribeToMessages opens a continuous listener on a room's messages. The
// subscription is filter-only so it never depends on index provisioning; on
// every snapshot the layer decodes, drops records missing their creation
// timestamp, sorts newest-first and truncates to limit before handing the
// caller the full replacement set.
//
// The returned release func must be invoked exactly once when the consuming
// view goes away. If setup fails, onError (when given) fires synchronously
// and the returned release is a no-op, so cleanup code can always call it.
func (l *Layer) SubscribeToMessages(ctx context.Context, roomID string, limit int64, onUpdate func([]model.Message), onError func(error)) func() {
	release, err := l.store.Subscribe(ctx, model.CollectionMessages,
		[]store.Filter{store.Eq("room_id", roomID)},
		func(docs []store.Document) {
			msgs := model.MessagesFromDocuments(docs)
			kept := msgs[:0]
			for _, m := range msgs {
				if m.CreatedAt.IsZero() {
					continue
				}
				kept = append(kept, m)
			}
			sortMessagesDesc(kept)
			if limit > 0 && int64(len(kept)) > limit {
				kept = kept[:limit]
			}
			onUpdate(kept)
		},
		func(err error) {
			l.log.Errorw("messages subscription failed", "room_id", roomID, "err", err)
			if onError != nil {
				onError(err)
			}
		})
	if err != nil {
		l.log.Errorw("messages subscription setup failed", "room_id", roomID, "err", err)
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	return trackSubscription(release)
}

// SubscribeToRooms mirrors SubscribeToMessages for a user's room list,
// ordered by last activity. Rooms missing their activity timestamp are
// dropped from the snapshot rather than ordered arbitrarily.
func (l *Layer) SubscribeToRooms(ctx context.Context, userID string, onUpdate func([]model.Room), onError func(error)) func() {
	release, err := l.store.Subscribe(ctx, model.CollectionRooms,
		[]store.Filter{store.Contains("members", userID)},
		func(docs []store.Document) {
			rooms := model.RoomsFromDocuments(docs)
			kept := rooms[:0]
			for _, r := range rooms {
				if r.LastMessageAt.IsZero() {
					continue
				}
				kept = append(kept, r)
			}
			sort.SliceStable(kept, func(i, j int) bool {
				return kept[i].LastMessageAt.After(kept[j].LastMessageAt)
			})
			onUpdate(kept)
		},
		func(err error) {
			l.log.Errorw("rooms subscription failed", "user_id", userID, "err", err)
			if onError != nil {
				onError(err)
			}
		})
	if err != nil {
		l.log.Errorw("rooms subscription setup failed", "user_id", userID, "err", err)
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	return trackSubscription(release)
}

// trackSubscription wraps a release func so the open-subscription gauge
// follows the subscription's lifetime. The decrement is once-guarded; the
// underlying release already tolerates repeated calls.
func trackSubscription(release func()) func() {
	metrics.ActiveSubscriptions.Inc()
	var once sync.Once
	return func() {
		once.Do(metrics.ActiveSubscriptions.Dec)
		release()
	}
}

func sortMessagesDesc(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}
