package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"80"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL}, nil)
	out, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "calculator"},
		{Role: RoleUser, Content: "{}"},
	})

	require.NoError(t, err)
	reply, ok := FirstAssistant(out)
	require.True(t, ok)
	assert.Equal(t, "80", reply)
}

var (
	_ VisionClient = (*OpenAIClient)(nil)
	_ VisionClient = (*GeminiClient)(nil)
)

func TestOpenAIClient_DescribeImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIVisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, visionMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		parts := req.Messages[0].Content
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].Type)
		assert.Equal(t, "assess the field", parts[0].Text)
		assert.Equal(t, "image_url", parts[1].Type)
		assert.Equal(t, "data:image/png;base64,iVBORw==", parts[1].ImageURL.URL)

		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL}, nil)
	out, err := client.DescribeImage(context.Background(), "assess the field",
		Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})

	require.NoError(t, err)
	reply, ok := FirstAssistant(out)
	require.True(t, ok)
	assert.Equal(t, "{}", reply)
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{}, nil)
	_, err := client.Chat(context.Background(), nil)
	assert.ErrorContains(t, err, "API key")
}

func TestFirstAssistant(t *testing.T) {
	_, ok := FirstAssistant([]Message{{Role: "tool", Content: "x"}})
	assert.False(t, ok)

	content, ok := FirstAssistant([]Message{
		{Role: "tool", Content: "x"},
		{Role: RoleAssistant, Content: "42"},
		{Role: RoleAssistant, Content: "43"},
	})
	assert.True(t, ok)
	assert.Equal(t, "42", content)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	assert.Error(t, err)
}
