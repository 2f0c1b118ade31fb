package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/chat"
	"github.com/fathima-sithara/chat-sync/internal/model"
	"github.com/fathima-sithara/chat-sync/internal/query"
	"github.com/fathima-sithara/chat-sync/internal/session"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

// fakeProvider drives the bridge by hand.
type fakeProvider struct {
	current *auth.Identity
	subs    []func(*auth.Identity)
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password, displayName string) (*auth.Identity, error) {
	return nil, nil
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.Identity, error) {
	return nil, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.fire(nil)
	return nil
}

func (f *fakeProvider) Current() *auth.Identity { return f.current }

func (f *fakeProvider) OnAuthChange(fn func(*auth.Identity)) func() {
	f.subs = append(f.subs, fn)
	fn(f.current)
	return func() {}
}

func (f *fakeProvider) fire(id *auth.Identity) {
	f.current = id
	for _, fn := range f.subs {
		fn(id)
	}
}

// userWriteCounter counts materializations going through the store.
type userWriteCounter struct {
	store.Store
	puts int
}

func (c *userWriteCounter) Put(ctx context.Context, collection, key string, doc store.Document, merge bool) error {
	if collection == model.CollectionUsers {
		c.puts++
	}
	return c.Store.Put(ctx, collection, key, doc, merge)
}

func newBridge(t *testing.T) (*session.Bridge, *fakeProvider, *userWriteCounter, *query.Layer) {
	t.Helper()
	counter := &userWriteCounter{Store: store.NewMemoryStore()}
	log := zap.NewNop().Sugar()
	qry := query.NewLayer(counter, log)
	svc := chat.NewService(counter, qry, nil, nil, log)
	provider := &fakeProvider{}
	return session.NewBridge(provider, svc, qry, log), provider, counter, qry
}

func TestBridgeMaterializesUserOnFirstSignIn(t *testing.T) {
	bridge, provider, counter, qry := newBridge(t)
	stop := bridge.Start()
	defer stop()

	assert.Zero(t, counter.puts, "signed-out startup writes nothing")

	provider.fire(&auth.Identity{UID: "u1", Email: "a@b.c", DisplayName: "Alice"})
	assert.Equal(t, 1, counter.puts)

	u, err := qry.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.DisplayName)
}

func TestBridgeMaterializesAtMostOncePerTransition(t *testing.T) {
	bridge, provider, counter, _ := newBridge(t)
	stop := bridge.Start()
	defer stop()

	id := &auth.Identity{UID: "u1", Email: "a@b.c", DisplayName: "Alice"}
	provider.fire(id)
	provider.fire(id) // repeated notification, same signed-in identity
	assert.Equal(t, 1, counter.puts)

	// sign-out then sign-in is a fresh transition, but the record already
	// exists so nothing is written
	provider.fire(nil)
	provider.fire(id)
	assert.Equal(t, 1, counter.puts)
}

func TestBridgeHandlesDistinctIdentities(t *testing.T) {
	bridge, provider, counter, _ := newBridge(t)
	stop := bridge.Start()
	defer stop()

	provider.fire(&auth.Identity{UID: "u1", Email: "a@b.c", DisplayName: "Alice"})
	provider.fire(&auth.Identity{UID: "u2", Email: "b@b.c", DisplayName: "Bob"})
	assert.Equal(t, 2, counter.puts)
}

func TestBridgeDoesNothingOnSignOut(t *testing.T) {
	bridge, provider, counter, qry := newBridge(t)
	stop := bridge.Start()
	defer stop()

	provider.fire(&auth.Identity{UID: "u1", Email: "a@b.c", DisplayName: "Alice"})
	provider.fire(nil)

	u, err := qry.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, u, "sign-out never deletes the record")
	assert.Equal(t, 1, counter.puts)
}
