// Package llm is a minimal client for the OpenRouter chat-completions API.
// It talks to the API directly over net/http; the streaming endpoint is
// exposed as a forward-only token stream.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// maxEventSize bounds a single SSE line. Individual deltas are tiny, but
// some providers batch large chunks into one event.
const maxEventSize = 1 << 20

// Message is one entry of the chat transcript sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are per-request generation knobs. Nil fields use the
// provider defaults.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
}

// TokenStream is a live, single-pass sequence of generated text chunks.
// Recv returns io.EOF on clean end of stream and any other error when the
// stream terminated abnormally. A TokenStream is not restartable and must
// not be shared between readers.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Client calls OpenRouter with a fixed model and API key.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests, self-hosted gateways).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		// No overall timeout: streams are long-lived. Cancellation comes
		// from the request context.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatStream opens a streaming completion for the given transcript.
// It returns as soon as the transport is established; errors reported by
// the API before the first chunk surface here, while failures after that
// come out of TokenStream.Recv.
func (c *Client) ChatStream(ctx context.Context, messages []Message, params GenerationParams) (TokenStream, error) {
	reqBody := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   true,
	}
	if params.Temperature != nil {
		reqBody["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		reqBody["max_tokens"] = *params.MaxTokens
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "open chat stream")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("chat stream rejected: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next non-empty content delta.
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		payload := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(payload, []byte("[DONE]")) {
			s.done = true
			return "", io.EOF
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(payload, &chunk); err != nil {
			// Skip unparsable keepalive/comment payloads.
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return "", errors.Errorf("chat stream failed: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				return choice.Delta.Content, nil
			}
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", errors.Wrap(err, "read chat stream")
	}
	// Upstream closed without [DONE]; treat as clean end.
	return "", io.EOF
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// Complete makes a simple single-turn, non-streaming completion request.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":    c.model,
		"messages": []Message{{Role: "user", Content: prompt}},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(err, "marshal completion request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", errors.Wrap(err, "build completion request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "completion request")
	}
	defer resp.Body.Close()

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", errors.Wrap(err, "decode completion response")
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("empty response from LLM")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// Model reports the configured chat model identifier.
func (c *Client) Model() string {
	return c.model
}
