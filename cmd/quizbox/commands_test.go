package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizbox/internal/api"
	"quizbox/internal/apitest"
	"quizbox/internal/auth"
	"quizbox/internal/model"
	"quizbox/internal/store"
)

func newTestApp(t *testing.T) (*app, *apitest.Server) {
	t.Helper()
	backend := apitest.NewServer()
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	client := api.New(srv.URL, nil)
	return &app{
		client:  client,
		store:   st,
		session: auth.NewSession(client, st, nil),
		log:     zap.NewNop(),
	}, backend
}

func TestBuildListingJoinsCompletionVerdicts(t *testing.T) {
	a, backend := newTestApp(t)
	ctx := context.Background()
	userID := backend.SeedAccount("mario@example.it", "pw")

	backend.SeedQuestionnaire(model.VariantStandard,
		model.Questionnaire{ID: 1, Title: "Anagrafica"},
		apitest.TextQuestion(1, "Nome", true))
	backend.SeedQuestionnaire(model.VariantStandard,
		model.Questionnaire{ID: 2, Title: "Patrimonio"},
		apitest.TextQuestion(2, "Immobili", true))

	// Only the first questionnaire has its required question answered.
	require.NoError(t, a.client.SaveAnswers(ctx, model.VariantStandard, userID, 1,
		model.AnswerSet{"1": "Mario"}))

	rows, err := a.buildListing(ctx, model.VariantStandard, userID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].questionnaire.ID)
	assert.True(t, rows[0].complete)
	assert.Equal(t, 2, rows[1].questionnaire.ID)
	assert.False(t, rows[1].complete)
	// No jobs enqueued yet, both sit in the default bucket.
	assert.Equal(t, "In coda", rows[0].status)
	assert.Equal(t, "In coda", rows[1].status)
}

func expiredJWT(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestScopeRejectsExpiredSession(t *testing.T) {
	a, backend := newTestApp(t)
	ctx := context.Background()
	backend.SeedAccount("mario@example.it", "pw")

	userID, err := a.session.SignIn(ctx, "mario@example.it", "pw")
	require.NoError(t, err)

	gotUser, gotQuestionnaire, err := a.scope(ctx, []string{"5"})
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, 5, gotQuestionnaire)

	// Once the stored token has expired the command fails before any
	// backend call.
	require.NoError(t, a.store.Set(ctx, store.KeyAuthToken, expiredJWT(t)))
	_, _, err = a.scope(ctx, []string{"5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
}
