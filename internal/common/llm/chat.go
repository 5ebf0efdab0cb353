package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient sends one conversation and returns the response messages in
// the order the backend produced them.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) ([]Message, error)
}

// Image is an inline picture attached to a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// VisionClient answers a single prompt about one image.
type VisionClient interface {
	DescribeImage(ctx context.Context, prompt string, image Image) ([]Message, error)
}

// FirstAssistant returns the content of the first assistant message.
func FirstAssistant(messages []Message) (string, bool) {
	for _, m := range messages {
		if m.Role == RoleAssistant {
			return m.Content, true
		}
	}
	return "", false
}
