package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studypal/internal/types"
)

// CompletionRequest is one chat turn to answer.
type CompletionRequest struct {
	Message string
	// Mode tunes the system prompt: explain, practice, or summary.
	Mode    string
	Subject string
}

// CompletionClient generates tutoring answers. The single implementation
// talks to the Gemini generateContent API.
type CompletionClient interface {
	Generate(ctx context.Context, req CompletionRequest) (string, error)
}

// GeminiClient implements CompletionClient over the Gemini REST API.
type GeminiClient struct {
	base    *BaseClient
	baseURL string
	model   string
	apiKey  types.SecretString
}

// NewGeminiClient creates a client for the given model. The timeout bounds
// the whole generation call; a hung model must not hold a request slot
// indefinitely.
func NewGeminiClient(baseURL, model string, apiKey types.SecretString, timeout time.Duration, opts ...BaseClientOption) *GeminiClient {
	return &GeminiClient{
		base: NewBaseClient(
			&http.Client{Timeout: timeout},
			"gemini-completion",
			RetryPolicy{MaxRetries: 1, MinWait: time.Second, MaxWait: 4 * time.Second},
			types.ErrCodeUpstreamCompletion,
			opts...,
		),
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
	}
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// systemPrompt builds the tutoring instruction for a mode and subject.
func systemPrompt(mode, subject string) string {
	var b strings.Builder
	b.WriteString("You are StudyPal, a patient university tutor.")
	if subject != "" {
		b.WriteString(" The student is studying " + subject + ".")
	}
	switch mode {
	case "practice":
		b.WriteString(" Generate practice questions and wait for answers before revealing solutions.")
	case "summary":
		b.WriteString(" Summarize the given material into concise revision notes.")
	default:
		b.WriteString(" Explain concepts step by step with examples.")
	}
	return b.String()
}

// Generate implements CompletionClient.
func (c *GeminiClient) Generate(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Message}}}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt(req.Mode, req.Subject)}},
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode completion request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey.Unmask())

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(types.ErrCodeUpstreamCompletion,
			fmt.Sprintf("completion provider returned %d", resp.StatusCode), nil)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&parsed); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamCompletion,
			"failed to decode completion response", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamCompletion,
			"completion response contained no candidates", nil)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

var _ CompletionClient = (*GeminiClient)(nil)
