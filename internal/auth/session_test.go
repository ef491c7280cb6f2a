package auth

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbox/internal/api"
	"quizbox/internal/apitest"
	"quizbox/internal/store"
)

func newFixture(t *testing.T) (*Session, *apitest.Server, store.Store) {
	t.Helper()
	backend := apitest.NewServer()
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return NewSession(api.New(srv.URL, nil), st, nil), backend, st
}

func TestSignInPersistsSession(t *testing.T) {
	sess, backend, _ := newFixture(t)
	want := backend.SeedAccount("mario@example.it", "pw")
	ctx := context.Background()

	got, err := sess.SignIn(ctx, "mario@example.it", "pw")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	id, err := sess.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, id)

	token, err := sess.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSignInBadCredentials(t *testing.T) {
	sess, backend, _ := newFixture(t)
	backend.SeedAccount("mario@example.it", "pw")

	_, err := sess.SignIn(context.Background(), "mario@example.it", "sbagliata")
	require.Error(t, err)

	_, err = sess.UserID(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignUpThenSignIn(t *testing.T) {
	sess, _, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.SignUp(ctx, "anna@example.it", "pw"))
	id, err := sess.SignIn(ctx, "anna@example.it", "pw")
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestSignOutWipesEverything(t *testing.T) {
	sess, backend, st := newFixture(t)
	backend.SeedAccount("mario@example.it", "pw")
	ctx := context.Background()

	_, err := sess.SignIn(ctx, "mario@example.it", "pw")
	require.NoError(t, err)
	// A soft cache entry must not survive sign-out either.
	require.NoError(t, st.Set(ctx, store.KeyLastPremiumChat, map[string]string{"thread_slug": "t-1"}))

	require.NoError(t, sess.SignOut(ctx))
	_, err = sess.UserID(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, err = sess.Token(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	var cache map[string]string
	assert.ErrorIs(t, st.Get(ctx, store.KeyLastPremiumChat, &cache), store.ErrNotFound)
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenValid(t *testing.T) {
	sess, _, st := newFixture(t)
	ctx := context.Background()

	_, err := sess.TokenValid(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	// Opaque tokens are assumed valid.
	require.NoError(t, st.Set(ctx, store.KeyAuthToken, "tok-opaco"))
	ok, err := sess.TokenValid(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.Set(ctx, store.KeyAuthToken, signedJWT(t, time.Now().Add(time.Hour))))
	ok, err = sess.TokenValid(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.Set(ctx, store.KeyAuthToken, signedJWT(t, time.Now().Add(-time.Hour))))
	ok, err = sess.TokenValid(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
