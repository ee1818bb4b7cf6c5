package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	defaultTimeout = 120 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// OpenAIConfig selects models for an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	ImageModel  string
	SpeechModel string
}

// OpenAIClient talks to an OpenAI-compatible API for chat, images and
// speech. It implements Generator.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient creates a client. Empty fields fall back to defaults.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TextModel == "" {
		cfg.TextModel = "gpt-4o-mini"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-2"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "tts-1"
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText sends prompt as a single user message and returns the reply.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	body, err := c.post(ctx, "/chat/completions", chatRequest{
		Model:    c.cfg.TextModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("generate text: decoding response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generate text: response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Style          string `json:"style,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage requests one PNG image.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (File, error) {
	req := imageRequest{
		Model:          c.cfg.ImageModel,
		Prompt:         prompt,
		N:              1,
		Size:           opts.Size,
		Quality:        opts.Quality,
		ResponseFormat: "b64_json",
	}
	// Only dall-e-3 accepts a style.
	if c.cfg.ImageModel == "dall-e-3" {
		req.Style = opts.Style
	}

	body, err := c.post(ctx, "/images/generations", req)
	if err != nil {
		return File{}, fmt.Errorf("generate image: %w", err)
	}

	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return File{}, fmt.Errorf("generate image: decoding response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return File{}, errors.New("generate image: response has no image")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return File{}, fmt.Errorf("generate image: decoding image: %w", err)
	}
	return File{Name: "image.png", ContentType: "image/png", Data: data}, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// TextToSpeech returns the spoken text as an audio file.
func (c *OpenAIClient) TextToSpeech(ctx context.Context, text string, opts SpeechOptions) (File, error) {
	format := opts.Format
	if format == "" {
		format = "mp3"
	}
	voice := opts.Voice
	if voice == "" {
		voice = "alloy"
	}
	data, err := c.post(ctx, "/audio/speech", speechRequest{
		Model:          c.cfg.SpeechModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
	})
	if err != nil {
		return File{}, fmt.Errorf("text to speech: %w", err)
	}
	if len(data) == 0 {
		return File{}, errors.New("text to speech: empty audio")
	}
	return File{Name: "speech." + format, ContentType: AudioContentType(format), Data: data}, nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return "rate limited (HTTP 429)"
}

// post sends a JSON body and returns the raw response body, retrying with
// exponential backoff while the API answers 429.
func (c *OpenAIClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		data, err := c.do(ctx, path, body)
		if err == nil {
			return data, nil
		}

		var rl *rateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}
		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		wait := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
		if rl.retryAfter > 0 {
			wait = rl.retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *OpenAIClient) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &rateLimitError{}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			rl.retryAfter = time.Duration(secs) * time.Second
		}
		return nil, rl
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
