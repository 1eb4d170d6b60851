// Package gemini is the Google Gemini backend for the AI gateway.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kalambet/localdesk/internal/gateway"
)

const DefaultModel = "gemini-2.0-flash"

// Config selects the model and credentials. BaseURL and HTTPClient are only
// set in tests.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	// SystemInstruction is sent with every request when non-empty.
	SystemInstruction string
}

// Backend sends single-turn prompts to Gemini.
type Backend struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is not set")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	b := &Backend{client: client, model: model}
	if cfg.SystemInstruction != "" {
		b.config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}},
		}
	}
	return b, nil
}

// Accepts reports the media Gemini reads natively.
func (b *Backend) Accepts(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

func (b *Backend) Generate(ctx context.Context, req gateway.Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if att := req.Attachment; att != nil {
		parts = append(parts, genai.NewPartFromBytes(att.Data, att.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, b.config)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", b.model, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini %s", b.model)
	}
	return resp.Text(), nil
}

func (b *Backend) Model() string { return b.model }
