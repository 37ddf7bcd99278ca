package retrieveevidence

import (
	"context"
	"testing"
	"time"

	"krishmitra-advisor/internal/advisor/evidence"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLexicalStore(t *testing.T) *evidence.Store {
	t.Helper()
	corpus, err := evidence.NewCorpus(evidence.SeedDocuments())
	require.NoError(t, err)
	return evidence.NewStore(corpus, nil, nil, evidence.Config{TopK: 3}, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second}, newLexicalStore(t), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "paddy tillering nitrogen top dressing", Crop: "paddy", Location: "Mandya"})
	require.NoError(t, err)

	require.NotEmpty(t, out.Evidence)
	assert.Equal(t, len(out.Evidence), out.Count)
	assert.Equal(t, evidence.BackendLexical, out.Backend)
	for _, e := range out.Evidence {
		assert.NotEmpty(t, e.Source)
		assert.Contains(t, []string{"", "all", "rice", "paddy"}, e.Crop)
	}
}

func TestHandler_Execute_EmptyResultIsNotNil(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second}, newLexicalStore(t), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "zzzz qqqq"})
	require.NoError(t, err)
	assert.NotNil(t, out.Evidence)
	assert.Equal(t, 0, out.Count)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second}, newLexicalStore(t), logger.NewTestLogger(t))

	tests := []struct {
		name  string
		input *Input
		code  commonerrors.ErrorCode
	}{
		{"nil", nil, commonerrors.ErrCodeEmptyQuery},
		{"blank", &Input{Query: " "}, commonerrors.ErrCodeEmptyQuery},
		{"bad from", &Input{Query: "wheat", From: "15/01/2024"}, commonerrors.ErrCodeInvalidInput},
		{"bad to", &Input{Query: "wheat", To: "2024-13-01"}, commonerrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), tt.input)
			var stdErr *commonerrors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, tt.code, stdErr.Code)
		})
	}
}
