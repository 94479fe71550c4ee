// Package v1 implements the HTTP API: the streaming chat pipeline and the
// read-side endpoints around it.
package v1

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/personakit/personakit/plugin/llm"
	"github.com/personakit/personakit/server/auth"
	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"
)

// GenerationClient is the remote model service the pipeline generates with.
type GenerationClient interface {
	ChatStream(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (llm.TokenStream, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// MemoryStore is the long-term memory collaborator. Retrieval is on the
// critical path and must be treated as best-effort; writes are
// fire-and-forget.
type MemoryStore interface {
	RetrieveMemory(ctx context.Context, userID, personaID, query string, k int) (string, error)
	WriteTurn(ctx context.Context, userID, personaID, userMessage, assistantReply string) error
}

// APIV1Service carries the dependencies of the /api/v1 handlers. It is
// constructed once at startup and injected into the router; no handler
// keeps process-wide state.
type APIV1Service struct {
	Secret   string
	Profile  *profile.Profile
	Store    *store.Store
	Memory   MemoryStore
	LLM      GenerationClient
	Personas *Registry

	authenticator *auth.Authenticator
	memoryTimeout time.Duration
	finalizers    sync.WaitGroup
}

func NewAPIV1Service(
	secret string,
	profile *profile.Profile,
	store *store.Store,
	memory MemoryStore,
	llmClient GenerationClient,
	personas *Registry,
) *APIV1Service {
	return &APIV1Service{
		Secret:        secret,
		Profile:       profile,
		Store:         store,
		Memory:        memory,
		LLM:           llmClient,
		Personas:      personas,
		authenticator: auth.NewAuthenticator(secret),
		memoryTimeout: defaultMemoryTimeout,
	}
}

// Register mounts all v1 routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	s.registerChatRoutes(e)
}

// WaitForFinalizers blocks until all detached persistence tasks have
// finished. Used during graceful shutdown and by tests.
func (s *APIV1Service) WaitForFinalizers() {
	s.finalizers.Wait()
}

// requireAuth resolves the request's access token to a verified user.
func (s *APIV1Service) requireAuth(c *echo.Context) (*auth.User, error) {
	authHeader := c.Request().Header.Get("Authorization")
	cookieHeader := c.Request().Header.Get("Cookie")
	user, err := s.authenticator.AuthenticateToUser(c.Request().Context(), authHeader, cookieHeader)
	if err != nil || user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return user, nil
}
