package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	commonhttp "crop-claims/internal/common/http"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// OpenAIClient speaks the chat-completions wire format.
type OpenAIClient struct {
	config OpenAIConfig
	http   *commonhttp.Client
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Vision requests carry content parts instead of a plain string.
type openAIVisionRequest struct {
	Model     string              `json:"model"`
	Messages  []openAIPartMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
}

type openAIPartMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

const visionMaxTokens = 1000

type openAIResponse struct {
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func NewOpenAIClient(config OpenAIConfig, httpClient *commonhttp.Client) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if httpClient == nil {
		httpClient = commonhttp.NewClient(0)
	}
	return &OpenAIClient{config: config, http: httpClient}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) ([]Message, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("openai: API key not configured")
	}

	reqBody := openAIRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
	}

	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}
	if err := c.http.PostJSON(ctx, c.config.BaseURL+"/chat/completions", headers, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return resp.messages(), nil
}

// DescribeImage sends the image inline as a base64 data URL.
func (c *OpenAIClient) DescribeImage(ctx context.Context, prompt string, image Image) ([]Message, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("openai: API key not configured")
	}

	dataURL := "data:" + image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
	reqBody := openAIVisionRequest{
		Model: c.config.Model,
		Messages: []openAIPartMessage{{
			Role: RoleUser,
			Content: []openAIContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
			},
		}},
		MaxTokens: visionMaxTokens,
	}

	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}
	if err := c.http.PostJSON(ctx, c.config.BaseURL+"/chat/completions", headers, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return resp.messages(), nil
}

func (r *openAIResponse) messages() []Message {
	out := make([]Message, 0, len(r.Choices))
	for _, choice := range r.Choices {
		out = append(out, choice.Message)
	}
	return out
}
