package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEditModel is the model /images/edits uses when the form carries no
// model field, which is what go-openai sends. It only selects the deployment
// path on Azure endpoints.
const OpenAIEditModel = openai.CreateImageModelDallE2

// EditStagingPattern names the temp files uploads are staged in.
const EditStagingPattern = "paprika-edit-*.png"

// openaiEditor performs image edits through the OpenAI images API.
type openaiEditor struct {
	client     *openai.Client
	stagingDir string
}

// newOpenAIEditor stages uploads in stagingDir; empty means the OS temp dir.
func newOpenAIEditor(apiKey, baseURL, stagingDir string, httpClient *http.Client) *openaiEditor {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}
	return &openaiEditor{
		client:     openai.NewClientWithConfig(clientConfig),
		stagingDir: stagingDir,
	}
}

func (e *openaiEditor) Name() string { return "openai" }

func (e *openaiEditor) Edit(ctx context.Context, data []byte, prompt string) ([]byte, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read request image header: %w", err)
	}

	// The multipart upload needs a named file.
	if e.stagingDir != "" {
		if err := os.MkdirAll(e.stagingDir, 0o755); err != nil {
			return nil, fmt.Errorf("stage request image: %w", err)
		}
	}
	f, err := os.CreateTemp(e.stagingDir, EditStagingPattern)
	if err != nil {
		return nil, fmt.Errorf("stage request image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("stage request image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("stage request image: %w", err)
	}

	resp, err := e.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          f,
		Prompt:         prompt,
		Model:          OpenAIEditModel,
		N:              1,
		Size:           editSize(max(cfg.Width, cfg.Height)),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data array", ErrNoImageReturned)
	}
	if resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: empty b64_json", ErrNoImageReturned)
	}

	out, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode b64_json: %w", err)
	}
	return out, nil
}

func (e *openaiEditor) Close() error { return nil }

// editSize picks the smallest supported edit size that covers side.
func editSize(side int) string {
	switch {
	case side <= 256:
		return openai.CreateImageSize256x256
	case side <= 512:
		return openai.CreateImageSize512x512
	default:
		return openai.CreateImageSize1024x1024
	}
}
