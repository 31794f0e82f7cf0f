package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini image model used for edits.
const DefaultGeminiModel = "gemini-2.5-flash-image"

// geminiEditor performs image edits through the Gemini API.
type geminiEditor struct {
	client *genai.Client
	model  string
}

func newGeminiEditor(ctx context.Context, apiKey, model string, httpClient *http.Client) (*geminiEditor, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &geminiEditor{client: client, model: model}, nil
}

func (e *geminiEditor) Name() string { return "gemini" }

func (e *geminiEditor) Edit(ctx context.Context, png []byte, prompt string) ([]byte, error) {
	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{
					InlineData: &genai.Blob{
						Data:     png,
						MIMEType: "image/png",
					},
				},
				{Text: prompt},
			},
		},
	}

	result, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, err
	}
	return firstInlineImage(result)
}

// Close is a no-op; the genai client holds no releasable resources.
func (e *geminiEditor) Close() error { return nil }

// firstInlineImage returns the first image part of a Gemini response. Text
// parts are collected only to explain an image-less reply.
func firstInlineImage(result *genai.GenerateContentResponse) ([]byte, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrNoImageReturned)
	}

	var text string
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
			if part.Text != "" && !part.Thought {
				text += part.Text
			}
		}
	}

	if text != "" {
		return nil, errors.Join(ErrNoImageReturned, fmt.Errorf("model replied: %q", truncate(text, 200)))
	}
	return nil, ErrNoImageReturned
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
