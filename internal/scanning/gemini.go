package scanning

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini. It is the
// cloud backend and the only one that accepts audio notes in addition to
// receipt images.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel

	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: 60 * time.Second,
	}, nil
}

// buildParts assembles the model input for one media file. Audio notes are
// sent as raw blobs with the spoken-note prompt; everything visual is
// normalized to PNG and paired with the receipt prompt.
func buildParts(mediaPath string, data []byte, validCategories []string) ([]genai.Part, error) {
	mimeType := mimeTypeForPath(mediaPath)
	if isAudioMimeType(mimeType) {
		return []genai.Part{
			genai.Blob{MIMEType: mimeType, Data: data},
			genai.Text(audioPrompt(validCategories)),
		}, nil
	}
	imageData, _, _, err := prepareImageData(data, mimeType)
	if err != nil {
		return nil, err
	}
	return []genai.Part{
		genai.ImageData("png", imageData),
		genai.Text(receiptPrompt(validCategories)),
	}, nil
}

// Process analyzes the media file and extracts purchase fields. Faults are
// returned as zero-confidence results, never as errors.
func (g *Gemini) Process(ctx context.Context, mediaPath string, validCategories []string) *Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return errorResult(fmt.Errorf("reading media file: %w", err))
	}

	parts, err := buildParts(mediaPath, data, validCategories)
	if err != nil {
		return errorResult(err)
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return errorResult(fmt.Errorf("generating content: %w", err))
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return errorResult(fmt.Errorf("no response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return buildResult(strings.TrimSpace(responseText.String()))
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
