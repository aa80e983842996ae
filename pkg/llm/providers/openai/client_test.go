package openai

import (
	"testing"

	"github.com/davidmoltin/procurement-workflows/pkg/llm"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestWithImages(t *testing.T) {
	c, err := NewClient(&llm.Config{APIKey: "sk-test", DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	req := c.buildRequest(&llm.ChatRequest{
		SystemPrompt: "transcribe",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "read this",
			Images:  []llm.Image{{MediaType: "image/png", Data: []byte("abc")}},
		}},
	})

	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "transcribe", req.Messages[0].Content)

	user := req.Messages[1]
	assert.Empty(t, user.Content)
	require.Len(t, user.MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePartTypeText, user.MultiContent[0].Type)
	assert.Equal(t, "data:image/png;base64,YWJj", user.MultiContent[1].ImageURL.URL)
}

func TestValidateRequest(t *testing.T) {
	c, err := NewClient(&llm.Config{APIKey: "sk-test"})
	require.NoError(t, err)

	assert.ErrorIs(t, c.validateRequest(&llm.ChatRequest{}), llm.ErrInvalidRequest)
	assert.Error(t, c.validateRequest(&llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		MaxTokens: maxTokensLimit + 1,
	}))
}
