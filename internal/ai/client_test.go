package ai

import (
	"context"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_MissingAPIKey(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := NewClient(context.Background(), &config.AIConfig{APIKey: "  "}, logger)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestToGenaiParts(t *testing.T) {
	parts := toGenaiParts([]Part{
		InlinePart("image/png", []byte{0x89, 0x50}),
		TextPart("analise"),
	})
	require.Len(t, parts, 2)

	blob, ok := parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte{0x89, 0x50}, blob.Data)

	text, ok := parts[1].(genai.Text)
	require.True(t, ok)
	assert.Equal(t, genai.Text("analise"), text)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Olá, "), genai.Blob{MIMEType: "x"}, genai.Text("mundo")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignorado")}}},
		},
	}
	assert.Equal(t, "Olá, mundo", responseText(resp))
}
