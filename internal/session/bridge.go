// Package session bridges identity-provider state to the user collection:
// the first time an identity shows up signed-in, its user record is
// materialized, exactly once per transition.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/chat"
	"github.com/fathima-sithara/chat-sync/internal/query"
)

// Bridge is a two-state machine (signed-out, signed-in(uid)) fed by the
// provider's push stream. It never deletes anything and does no cleanup on
// sign-out; it exists only to make sure every signed-in identity has a user
// record.
type Bridge struct {
	provider auth.Provider
	chat     *chat.Service
	query    *query.Layer
	log      *zap.SugaredLogger

	mu      sync.Mutex
	current string // uid while signed in, "" otherwise
}

func NewBridge(provider auth.Provider, chatSvc *chat.Service, qry *query.Layer, log *zap.SugaredLogger) *Bridge {
	return &Bridge{provider: provider, chat: chatSvc, query: qry, log: log}
}

// Start registers with the provider and returns the release func. The
// bridge runs until released, normally the process lifetime.
func (b *Bridge) Start() func() {
	return b.provider.OnAuthChange(b.onChange)
}

func (b *Bridge) onChange(id *auth.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == nil {
		b.current = ""
		return
	}
	if b.current == id.UID {
		// repeated notification for the same signed-in identity, not a
		// transition
		return
	}
	b.current = id.UID
	b.materialize(id)
}

func (b *Bridge) materialize(id *auth.Identity) {
	ctx := context.Background()
	existing, err := b.query.GetUserByID(ctx, id.UID)
	if err != nil {
		b.log.Errorw("user lookup on sign-in", "user_id", id.UID, "err", err)
		return
	}
	if existing != nil {
		return
	}
	err = b.chat.CreateUser(ctx, chat.UserSpec{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	})
	if err != nil {
		b.log.Errorw("materialize user record", "user_id", id.UID, "err", err)
		return
	}
	b.log.Infow("user record materialized", "user_id", id.UID)
}
