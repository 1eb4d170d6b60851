package ollama

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kalambet/localdesk/internal/gateway"
)

// Backend adapts a Client to gateway.Backend for one model.
type Backend struct {
	client *Client
	model  string
}

func NewBackend(c *Client, model string) *Backend {
	return &Backend{client: c, model: model}
}

// Accepts reports the image types Ollama vision models decode.
func (b *Backend) Accepts(mimeType string) bool {
	return mimeType == "image/png" || mimeType == "image/jpeg"
}

func (b *Backend) Generate(ctx context.Context, req gateway.Request) (string, error) {
	msg := Message{Role: "user", Content: req.Prompt}
	if req.Attachment != nil {
		msg.Images = []string{base64.StdEncoding.EncodeToString(req.Attachment.Data)}
	}
	text, err := b.client.Chat(ctx, b.model, []Message{msg}, "")
	if err != nil {
		return "", fmt.Errorf("ollama %s: %w", b.model, err)
	}
	return text, nil
}

// Model returns the configured model name.
func (b *Backend) Model() string { return b.model }
