// Package auth defines the identity-provider capability set the rest of the
// service consumes, plus a local implementation backed by bcrypt
// credentials, HS256 tokens and redis session state.
package auth

import "context"

// Identity is the signed-in principal as the provider reports it.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Provider is the capability set of the hosted identity service. Auth state
// changes are pushed: OnAuthChange registers a listener that fires with the
// current identity immediately and with every transition afterwards (nil
// for signed-out). The returned func removes the listener.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	Current() *Identity
	OnAuthChange(fn func(*Identity)) func()
}
