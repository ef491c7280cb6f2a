package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbox/internal/apitest"
	"quizbox/internal/model"
)

func newTestClient(t *testing.T) (*Client, *apitest.Server) {
	t.Helper()
	backend := apitest.NewServer()
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)
	return New(srv.URL, nil), backend
}

func TestLogin(t *testing.T) {
	client, backend := newTestClient(t)
	userID := backend.SeedAccount("mario@example.it", "segretissima")

	res, err := client.Login(context.Background(), Credentials{Email: "mario@example.it", Password: "segretissima"})
	require.NoError(t, err)
	assert.Equal(t, userID, res.UserID)
	assert.NotEmpty(t, res.Token)

	_, err = client.Login(context.Background(), Credentials{Email: "mario@example.it", Password: "sbagliata"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Error(), "credenziali")
}

func TestSignupThenLogin(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Signup(ctx, Credentials{Email: "anna@example.it", Password: "pw"}))
	// Duplicate registration is a backend-reported failure.
	err := client.Signup(ctx, Credentials{Email: "anna@example.it", Password: "pw"})
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)

	res, err := client.Login(ctx, Credentials{Email: "anna@example.it", Password: "pw"})
	require.NoError(t, err)
	assert.Positive(t, res.UserID)
}

func TestProfile(t *testing.T) {
	client, backend := newTestClient(t)
	userID := backend.SeedAccount("mario@example.it", "pw")
	ctx := context.Background()

	require.NoError(t, client.UpdateProfile(ctx, userID, "Mario", "Rossi"))
	p, err := client.Profile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Mario", p.NameFirst)
	assert.Equal(t, "Rossi", p.NameLast)
	assert.Equal(t, "mario@example.it", p.Email)

	_, err = client.Profile(ctx, 99999)
	assert.Error(t, err)
}

func TestQuestionsNormalizedAtBoundary(t *testing.T) {
	client, backend := newTestClient(t)
	backend.SeedQuestionnaire(model.VariantPremium, model.Questionnaire{ID: 9, Title: "Tutele"},
		apitest.TextQuestion(2, "Nome", true),
		apitest.NumberQuestion(1, "Reddito", true),
		apitest.UploadQuestion(3, "Documenti", true, map[int]string{10: "Carta identità"}),
	)

	qs, err := client.Questions(context.Background(), model.VariantPremium, 9)
	require.NoError(t, err)
	require.Len(t, qs, 3)

	// Sorted by id, kinds tagged including the option-shape upload heuristic.
	assert.Equal(t, model.KindNumber, qs[0].Kind)
	assert.Equal(t, model.KindText, qs[1].Kind)
	assert.Equal(t, model.KindUpload, qs[2].Kind)
	require.Len(t, qs[2].Options, 1)
	assert.Equal(t, "Carta identità", qs[2].Options[0].Name)
}

func TestAnswersRoundTrip(t *testing.T) {
	client, backend := newTestClient(t)
	backend.SeedQuestionnaire(model.VariantStandard, model.Questionnaire{ID: 5, Title: "Base"},
		apitest.TextQuestion(1, "Nome", true))
	ctx := context.Background()

	// Empty set before any save.
	set, err := client.Answers(ctx, model.VariantStandard, 42, 5)
	require.NoError(t, err)
	assert.Empty(t, set)

	in := model.AnswerSet{"1": "Mario", "7": map[string]any{"10": "F0001"}}
	require.NoError(t, client.SaveAnswers(ctx, model.VariantStandard, 42, 5, in))

	out, err := client.Answers(ctx, model.VariantStandard, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, "Mario", out["1"])
	assert.Equal(t, map[string]string{"10": "F0001"}, out.UploadSlots("7"))
	assert.Equal(t, 1, backend.SaveCount(42, 5))
}

func TestGetRequestsCarryCacheBuster(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{}})
	}))
	defer srv.Close()

	client := New(srv.URL, nil)
	_, err := client.Profile(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "_=")
	assert.Contains(t, gotQuery, "user_id=1")
}

func TestServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, nil)
	_, err := client.Profile(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFileLifecycle(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	file, err := client.UploadFile(ctx, 42, 9, 10, "", "ci.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.Equal(t, 10, file.TipologiaID)
	assert.Equal(t, "ci.pdf", file.Filename)

	files, err := client.UserFiles(ctx, 42)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// Attach the same file to a second questionnaire, then remove the first
	// link: the file survives because another link still references it.
	require.NoError(t, client.AttachFile(ctx, 42, 11, 10, file.ID))
	res, err := client.RemoveFile(ctx, 42, 9, 10)
	require.NoError(t, err)
	assert.True(t, res.LinkRemoved)
	assert.False(t, res.FileDeleted)

	// Removing the last link orphans and deletes the file.
	res, err = client.RemoveFile(ctx, 42, 11, 10)
	require.NoError(t, err)
	assert.True(t, res.FileDeleted)

	files, err = client.UserFiles(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, files)

	// Removing a slot nothing is linked to is a no-op, not an error.
	res, err = client.RemoveFile(ctx, 42, 9, 10)
	require.NoError(t, err)
	assert.False(t, res.LinkRemoved)
	assert.False(t, res.FileDeleted)
}

func TestAIPipeline(t *testing.T) {
	client, backend := newTestClient(t)
	backend.SeedQuestionnaire(model.VariantPremium, model.Questionnaire{ID: 9, Title: "Tutele", NumPrompts: 2})
	ctx := context.Background()

	stats, err := client.InitializeAI(ctx, model.VariantPremium, 42, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Enqueued)
	assert.Equal(t, 2, stats.Total)

	// A second initialize reports duplicates; the total fallback still holds.
	stats, err = client.InitializeAI(ctx, model.VariantPremium, 42, 9)
	require.NoError(t, err)
	assert.Zero(t, stats.Enqueued)
	assert.Equal(t, 2, stats.Total)

	// Poll until the simulated queue drains.
	var st model.JobStatus
	for i := 0; i < 10; i++ {
		st, err = client.AIStatus(ctx, model.VariantPremium, 42, 9)
		require.NoError(t, err)
		if st.Terminal() {
			break
		}
	}
	require.True(t, st.Terminal())

	details, err := client.AIDetails(ctx, model.VariantPremium, 42, 9, "")
	require.NoError(t, err)
	assert.NotEmpty(t, details["summary"])

	only, err := client.AIDetails(ctx, model.VariantPremium, 42, 9, "summary")
	require.NoError(t, err)
	assert.Len(t, only, 1)

	resultID, err := client.LatestResultID(ctx, model.VariantPremium, 42, 9)
	require.NoError(t, err)
	assert.Positive(t, resultID)
}

func TestSendChat(t *testing.T) {
	client, backend := newTestClient(t)
	resultID := backend.FinishJobs(42, 9)
	ctx := context.Background()

	first, err := client.SendChat(ctx, ChatPayload{SessionID: "s1", Message: "ciao", ResultID: resultID})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ThreadSlug)
	assert.NotEmpty(t, first.Reply)

	followUp, err := client.SendChat(ctx, ChatPayload{SessionID: "s1", Message: "dettagli", ThreadSlug: first.ThreadSlug})
	require.NoError(t, err)
	assert.Equal(t, first.ThreadSlug, followUp.ThreadSlug)

	// Neither a result id nor a thread reference: backend failure.
	_, err = client.SendChat(ctx, ChatPayload{SessionID: "s1", Message: "ciao"})
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}
