package apitest_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbox/internal/api"
	"quizbox/internal/apitest"
	"quizbox/internal/auth"
	"quizbox/internal/autosave"
	"quizbox/internal/chat"
	"quizbox/internal/form"
	"quizbox/internal/gate"
	"quizbox/internal/model"
	"quizbox/internal/poller"
	"quizbox/internal/schema"
	"quizbox/internal/store"
	"quizbox/internal/upload"
)

// TestPremiumJourney walks the whole premium flow over HTTP: sign in, fill
// the questionnaire with debounced autosave, upload a document, pass the
// completion gate, run the AI pipeline to completion, then chat about the
// result.
func TestPremiumJourney(t *testing.T) {
	backend := apitest.NewServer()
	srv := httptest.NewServer(backend.Router())
	defer srv.Close()

	backend.SeedAccount("mario@example.it", "pw")
	backend.SeedQuestionnaire(model.VariantPremium,
		model.Questionnaire{ID: 9, Title: "Tutele", NumPrompts: 2},
		apitest.TextQuestion(1, "Nome", true),
		apitest.NumberQuestion(2, "Reddito annuo", true),
		apitest.UploadQuestion(3, "Documenti", true, map[int]string{10: "Carta identità"}),
	)

	client := api.New(srv.URL, nil)
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	ctx := context.Background()

	// Sign in.
	sess := auth.NewSession(client, st, nil)
	userID, err := sess.SignIn(ctx, "mario@example.it", "pw")
	require.NoError(t, err)

	// Load the questionnaire and fill it.
	questions, err := client.Questions(ctx, model.VariantPremium, 9)
	require.NoError(t, err)
	require.Len(t, questions, 3)

	wizard := form.New(questions, form.DefaultPageSize)
	comp := schema.NewCompilerWithCache(4)
	wizard.SetValidator(func(set model.AnswerSet) error {
		return comp.Validate(model.VariantPremium, 9, questions, set)
	})

	saver := autosave.New(func(ctx context.Context, set model.AnswerSet) error {
		return client.SaveAnswers(ctx, model.VariantPremium, userID, 9, set)
	}, nil, autosave.WithQuietPeriod(10*time.Millisecond))
	defer saver.Stop()
	wizard.OnChange(saver.Offer)

	wizard.Control("1").SetAndNotify("Mario Rossi")
	wizard.Control("2").SetAndNotify("32000")
	require.Eventually(t, func() bool {
		return backend.SaveCount(userID, 9) >= 1
	}, time.Second, 5*time.Millisecond)

	// Upload the required document.
	orch := upload.New(client, wizard, saver, upload.NewCatalog(), userID, 9, nil)
	file, err := orch.Select(ctx, questions[2], 10, "", "ci.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	stored := backend.Answers(model.VariantPremium, userID, 9)
	require.NotNil(t, stored)
	assert.Equal(t, file.ID, stored.UploadSlots("3")["10"])

	// Final submit on the single step.
	_, err = wizard.Submit(ctx, func(ctx context.Context, set model.AnswerSet) error {
		return client.SaveAnswers(ctx, model.VariantPremium, userID, 9, set)
	})
	require.NoError(t, err)

	// The gate now passes and the AI pipeline may start.
	checker := gate.NewChecker(client, model.VariantPremium, userID, nil)
	require.True(t, checker.Check(ctx, 9))

	tracker := poller.New(client, model.VariantPremium, userID, nil,
		poller.WithInterval(10*time.Millisecond))
	defer tracker.StopAll()

	stats, err := tracker.Init(ctx, 9, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)

	require.Eventually(t, func() bool {
		status, ok := tracker.Status(9)
		return ok && status.Terminal()
	}, time.Second, 5*time.Millisecond)
	assert.True(t, tracker.HasSummary(9))

	// Chat about the result.
	mgr := chat.NewManager(client, st, nil)
	mgr.Start(0)
	require.NoError(t, mgr.ResolveResult(ctx, model.VariantPremium, userID, 9))

	reply, err := mgr.Send(ctx, "come sono messo?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Reply)
	assert.Equal(t, chat.ThreadEstablished, mgr.State())

	_, err = mgr.Send(ctx, "approfondisci le tutele")
	require.NoError(t, err)
	assert.Equal(t, reply.ThreadSlug, mgr.ThreadSlug())

	// Sign out wipes the chat soft cache with the rest of the state.
	require.NoError(t, sess.SignOut(ctx))
	var cached map[string]any
	assert.ErrorIs(t, st.Get(ctx, store.KeyLastPremiumChat, &cached), store.ErrNotFound)
}
