package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestNormalizeQuestions_KindTagging(t *testing.T) {
	raw := []json.RawMessage{
		rawJSON(t, map[string]any{"id": 3, "testo": "Reddito annuo", "tipo": "number", "obbligatoria": true}),
		rawJSON(t, map[string]any{"id": 1, "testo": "Nome", "tipo": "text", "obbligatoria": true}),
		rawJSON(t, map[string]any{"id": 2, "testo": "Documenti", "tipo": "upload"}),
		// No tipo tag and every option shaped {id, nome}: upload by heuristic.
		rawJSON(t, map[string]any{"id": 4, "testo": "Allegati", "opzioni": []map[string]any{
			{"id": 10, "nome": "Carta identità"},
			{"id": 11, "nome": "Busta paga"},
		}}),
		// No tipo and no options: plain text.
		rawJSON(t, map[string]any{"id": 5, "testo": "Note"}),
	}

	qs, err := NormalizeQuestions(raw)
	require.NoError(t, err)
	require.Len(t, qs, 5)

	// Sorted by id.
	for i, want := range []int{1, 2, 3, 4, 5} {
		assert.Equal(t, want, qs[i].ID)
	}

	kinds := map[int]QuestionKind{}
	for _, q := range qs {
		kinds[q.ID] = q.Kind
	}
	assert.Equal(t, KindText, kinds[1])
	assert.Equal(t, KindUpload, kinds[2])
	assert.Equal(t, KindNumber, kinds[3])
	assert.Equal(t, KindUpload, kinds[4])
	assert.Equal(t, KindText, kinds[5])
}

func TestNormalizeQuestions_OptionShapeMustBeComplete(t *testing.T) {
	// One option without a nome defeats the heuristic.
	raw := []json.RawMessage{
		rawJSON(t, map[string]any{"id": 1, "testo": "Scelta", "opzioni": []map[string]any{
			{"id": 10, "nome": "Prima"},
			{"id": 11},
		}}),
	}
	qs, err := NormalizeQuestions(raw)
	require.NoError(t, err)
	assert.Equal(t, KindText, qs[0].Kind)
}

func TestNormalizeQuestions_BadJSON(t *testing.T) {
	_, err := NormalizeQuestions([]json.RawMessage{json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestAnswerSetUploadSlots(t *testing.T) {
	set := AnswerSet{
		"7": map[string]any{"10": "F0001", "11": "F0002", "12": 99},
		"8": "not a slot map",
	}

	slots := set.UploadSlots("7")
	assert.Equal(t, map[string]string{"10": "F0001", "11": "F0002"}, slots)

	assert.Empty(t, set.UploadSlots("8"))
	assert.Empty(t, set.UploadSlots("missing"))
}

func TestQuestionKey(t *testing.T) {
	assert.Equal(t, "42", Question{ID: 42}.Key())
}
