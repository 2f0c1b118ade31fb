package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const refreshTokenPrefix = "refresh_token:"

type credential struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	DisplayName  string    `bson:"display_name"`
	AvatarURL    string    `bson:"avatar_url,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

// LocalProvider implements Provider against a credentials collection.
// Chat data never reads this collection; the only bridge between the two
// worlds is the Identity pushed through OnAuthChange.
type LocalProvider struct {
	col    *mongo.Collection
	rdb    *redis.Client
	tokens *TokenManager
	log    *zap.SugaredLogger

	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

func NewLocalProvider(col *mongo.Collection, rdb *redis.Client, tokens *TokenManager, log *zap.SugaredLogger) *LocalProvider {
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &LocalProvider{
		col:    col,
		rdb:    rdb,
		tokens: tokens,
		log:    log,
		subs:   make(map[int]func(*Identity)),
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	if err := p.col.FindOne(ctx, bson.M{"email": email}).Err(); err == nil {
		return nil, ErrEmailTaken
	} else if err != mongo.ErrNoDocuments {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	cred := credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := p.col.InsertOne(ctx, cred); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	id := &Identity{UID: cred.ID, Email: cred.Email, DisplayName: cred.DisplayName}
	if err := p.storeRefresh(ctx, id.UID); err != nil {
		p.log.Warnw("store refresh token", "user_id", id.UID, "err", err)
	}
	p.setCurrent(id)
	return id, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	var cred credential
	if err := p.col.FindOne(ctx, bson.M{"email": email}).Decode(&cred); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	id := &Identity{UID: cred.ID, Email: cred.Email, DisplayName: cred.DisplayName, AvatarURL: cred.AvatarURL}
	if err := p.storeRefresh(ctx, id.UID); err != nil {
		p.log.Warnw("store refresh token", "user_id", id.UID, "err", err)
	}
	p.setCurrent(id)
	return id, nil
}

func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur != nil && p.rdb != nil {
		if err := p.rdb.Del(ctx, refreshTokenPrefix+cur.UID).Err(); err != nil {
			p.log.Warnw("drop refresh token", "user_id", cur.UID, "err", err)
		}
	}
	p.setCurrent(nil)
	return nil
}

func (p *LocalProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	cp := *p.current
	return &cp
}

func (p *LocalProvider) OnAuthChange(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	cur := p.current
	p.mu.Unlock()

	// new listeners always learn the present state first
	fn(cur)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) setCurrent(id *Identity) {
	p.mu.Lock()
	p.current = id
	listeners := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

func (p *LocalProvider) storeRefresh(ctx context.Context, uid string) error {
	if p.rdb == nil {
		return nil
	}
	token, exp, err := p.tokens.GenerateRefresh(uid)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, refreshTokenPrefix+uid, token, time.Until(exp)).Err()
}
