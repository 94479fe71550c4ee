package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func sseHandler(t *testing.T, events []string, sendDone bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		if sendDone {
			fmt.Fprint(w, "data: [DONE]\n\n")
		}
	}
}

func deltaEvent(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func drain(t *testing.T, stream TokenStream) (string, error) {
	t.Helper()
	out := ""
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out += chunk
	}
}

func TestChatStream(t *testing.T) {
	ctx := context.Background()

	t.Run("streams deltas until DONE", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{
			deltaEvent("Hel"),
			deltaEvent("lo"),
			deltaEvent("!"),
		}, true))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		stream, err := c.ChatStream(ctx, []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
		require.NoError(t, err)
		defer stream.Close()

		out, err := drain(t, stream)
		require.NoError(t, err)
		require.Equal(t, "Hello!", out)

		// Recv after EOF stays EOF.
		_, err = stream.Recv()
		require.Equal(t, io.EOF, err)
	})

	t.Run("close without DONE is a clean end", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{deltaEvent("partial")}, false))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		stream, err := c.ChatStream(ctx, nil, GenerationParams{})
		require.NoError(t, err)
		defer stream.Close()

		out, err := drain(t, stream)
		require.NoError(t, err)
		require.Equal(t, "partial", out)
	})

	t.Run("empty deltas and keepalives are skipped", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{
			`{"choices":[{"delta":{}}]}`,
			"not json",
			deltaEvent("text"),
		}, true))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		stream, err := c.ChatStream(ctx, nil, GenerationParams{})
		require.NoError(t, err)
		defer stream.Close()

		out, err := drain(t, stream)
		require.NoError(t, err)
		require.Equal(t, "text", out)
	})

	t.Run("inline error event fails the stream", func(t *testing.T) {
		srv := httptest.NewServer(sseHandler(t, []string{
			deltaEvent("some "),
			`{"error":{"message":"rate limited"}}`,
		}, false))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		stream, err := c.ChatStream(ctx, nil, GenerationParams{})
		require.NoError(t, err)
		defer stream.Close()

		out, err := drain(t, stream)
		require.Error(t, err)
		require.Contains(t, err.Error(), "rate limited")
		require.Equal(t, "some ", out)
	})

	t.Run("non-200 surfaces before any stream exists", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
		}))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		_, err := c.ChatStream(ctx, nil, GenerationParams{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "401")
	})

	t.Run("generation params are forwarded", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer srv.Close()

		temp := float32(0.7)
		maxTokens := 256
		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		stream, err := c.ChatStream(ctx, nil, GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})
		require.NoError(t, err)
		defer stream.Close()

		require.InDelta(t, 0.7, got["temperature"], 0.001)
		require.EqualValues(t, 256, got["max_tokens"])
		require.Equal(t, "test-model", got["model"])
	})
}

func TestComplete(t *testing.T) {
	t.Run("returns the first choice", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Nil(t, body["stream"])
			fmt.Fprint(w, `{"choices":[{"message":{"content":"pong"}}]}`)
		}))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		out, err := c.Complete(context.Background(), "ping")
		require.NoError(t, err)
		require.Equal(t, "pong", out)
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}))
		defer srv.Close()

		c := NewClient("test-key", "test-model", WithBaseURL(srv.URL))
		_, err := c.Complete(context.Background(), "ping")
		require.Error(t, err)
	})
}

func TestModel(t *testing.T) {
	c := NewClient("k", "openai/gpt-4o-mini")
	require.Equal(t, "openai/gpt-4o-mini", c.Model())
}
