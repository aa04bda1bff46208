package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNotSignedIn signals the signed-out state. It is a control-flow
// sentinel, not a failure: data-access paths catch it and fall back to the
// local store.
var ErrNotSignedIn = errors.New("not signed in")

// User is the authenticated principal as reported by the identity provider.
type User struct {
	UID             string
	Email           string
	CreatedDatetime time.Time
}

// Identity is the external identity provider: credential sign-in, current
// user lookup, ID tokens and auth-state notifications.
type Identity interface {
	// SignIn authenticates with email/password credentials.
	SignIn(ctx context.Context, email, password string) (*User, error)
	// SignOut drops the current session.
	SignOut(ctx context.Context) error
	// CurrentUser returns the authenticated user, or ErrNotSignedIn.
	CurrentUser(ctx context.Context) (*User, error)
	// IDToken returns a bearer token for the current user, or ErrNotSignedIn.
	IDToken(ctx context.Context) (string, error)
	// OnAuthStateChanged registers fn to run on every sign-in (with the
	// user) and sign-out (with nil). Returns an unsubscribe function.
	OnAuthStateChanged(fn func(*User)) func()
}
