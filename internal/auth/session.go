// Package auth manages the signed-in session: credential exchange against
// the backend and persistence of token and user id in the local store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"quizbox/internal/api"
	"quizbox/internal/store"
)

// ErrNotSignedIn is returned when no persisted session exists.
var ErrNotSignedIn = errors.New("auth: not signed in")

// Session resolves and mutates the persisted identity.
type Session struct {
	client *api.Client
	store  store.Store
	log    *zap.Logger
}

// NewSession builds a Session over the given API client and store.
func NewSession(client *api.Client, st store.Store, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{client: client, store: st, log: log}
}

// SignIn exchanges credentials for a session and persists token and user id.
func (s *Session) SignIn(ctx context.Context, email, password string) (int, error) {
	res, err := s.client.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		return 0, fmt.Errorf("sign in: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyAuthToken, res.Token); err != nil {
		return 0, fmt.Errorf("persist token: %w", err)
	}
	if res.UserID > 0 {
		if err := s.store.Set(ctx, store.KeyUserID, res.UserID); err != nil {
			return 0, fmt.Errorf("persist user id: %w", err)
		}
	}
	s.log.Info("signed in", zap.Int("user_id", res.UserID))
	return res.UserID, nil
}

// SignUp registers an account. The caller signs in afterwards.
func (s *Session) SignUp(ctx context.Context, email, password string) error {
	if err := s.client.Signup(ctx, api.Credentials{Email: email, Password: password}); err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	return nil
}

// SignOut wipes the whole local store, soft caches included.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	s.log.Info("signed out")
	return nil
}

// UserID returns the persisted user id, or ErrNotSignedIn.
func (s *Session) UserID(ctx context.Context) (int, error) {
	var id int
	err := s.store.Get(ctx, store.KeyUserID, &id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && id <= 0) {
		return 0, ErrNotSignedIn
	}
	if err != nil {
		return 0, fmt.Errorf("read user id: %w", err)
	}
	return id, nil
}

// Token returns the persisted auth token, or ErrNotSignedIn.
func (s *Session) Token(ctx context.Context) (string, error) {
	var token string
	err := s.store.Get(ctx, store.KeyAuthToken, &token)
	if errors.Is(err, store.ErrNotFound) || (err == nil && token == "") {
		return "", ErrNotSignedIn
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// TokenValid reports whether the persisted token is still usable. The token
// is opaque to the backend contract, but when it happens to be a JWT its
// expiry is checked locally so doomed calls fail before the network.
func (s *Session) TokenValid(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return false, err
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		// Not a JWT; assume the backend accepts it until proven otherwise.
		return true, nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true, nil
	}
	return exp.After(time.Now()), nil
}
