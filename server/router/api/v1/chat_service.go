package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/personakit/personakit/plugin/llm"
	"github.com/personakit/personakit/store"
)

// finalizeTimeout bounds the detached persistence task. It runs on a
// background context because the request is already answered.
const finalizeTimeout = 30 * time.Second

// summaryTurnWindow is how many trailing archived turns feed the
// conversation summary.
const summaryTurnWindow = 20

// ─────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ─────────────────────────────────────────────────────────────────────────────

type chatRequest struct {
	Content string      `json:"content"` // new user message text
	History []TurnInput `json:"history"` // prior turns, oldest first, excludes Content
}

type personaResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type turnResponse struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Route registration
// ─────────────────────────────────────────────────────────────────────────────

func (s *APIV1Service) registerChatRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/personas", s.listPersonas)
	g.GET("/quota", s.getQuota)
	g.GET("/chat/:personaId/turns", s.listChatTurns)
	g.DELETE("/chat/:personaId/turns", s.deleteChatTurns)
	g.GET("/chat/:personaId/summary", s.summarizeChat)
	g.POST("/chat/:personaId", s.handleChat)
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog / read-side endpoints
// ─────────────────────────────────────────────────────────────────────────────

func (s *APIV1Service) listPersonas(c *echo.Context) error {
	personas := s.Personas.List()
	resp := make([]personaResponse, 0, len(personas))
	for _, p := range personas {
		resp = append(resp, personaResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getQuota(c *echo.Context) error {
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	record, err := s.checkQuota(c.Request().Context(), user.ID, user.Tier)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	snap := newQuotaSnapshot(record)
	setRateLimitHeaders(c.Response().Header(), snap)
	return c.JSON(http.StatusOK, snap)
}

func (s *APIV1Service) listChatTurns(c *echo.Context) error {
	personaID := c.Param("personaId")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	if _, ok := s.Personas.Lookup(personaID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "persona not found")
	}
	find := &store.FindChatTurn{
		UserID:    user.ID,
		PersonaID: personaID,
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		find.Limit = &limit
	}
	turns, err := s.Store.ListChatTurns(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		resp = append(resp, turnResponse{
			UID:       turn.UID,
			Role:      turn.Role,
			Content:   turn.Content,
			CreatedTs: turn.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) deleteChatTurns(c *echo.Context) error {
	personaID := c.Param("personaId")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	if _, ok := s.Personas.Lookup(personaID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "persona not found")
	}
	if err := s.Store.DeleteChatTurns(c.Request().Context(), user.ID, personaID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// summarizeChat condenses the user's archived conversation with one
// persona into a few sentences via a single non-streaming completion.
func (s *APIV1Service) summarizeChat(c *echo.Context) error {
	personaID := c.Param("personaId")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	persona, ok := s.Personas.Lookup(personaID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "persona not found")
	}

	ctx := c.Request().Context()
	turns, err := s.Store.ListChatTurns(ctx, &store.FindChatTurn{
		UserID:    user.ID,
		PersonaID: personaID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(turns) == 0 {
		return c.JSON(http.StatusOK, map[string]string{"summary": ""})
	}
	if len(turns) > summaryTurnWindow {
		turns = turns[len(turns)-summaryTurnWindow:]
	}

	var sb strings.Builder
	sb.WriteString("Summarize this conversation between a user and " + persona.Name + " in two or three sentences:\n\n")
	for _, turn := range turns {
		sb.WriteString(turn.Role + ": " + turn.Content + "\n")
	}

	summary, err := s.LLM.Complete(ctx, sb.String())
	if err != nil {
		slog.Error("failed to summarize conversation",
			"user", user.ID, "persona", personaID, "err", err)
		return echo.NewHTTPError(http.StatusBadGateway, "summary failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": summary})
}

// ─────────────────────────────────────────────────────────────────────────────
// Main chat handler (SSE)
// ─────────────────────────────────────────────────────────────────────────────

func (s *APIV1Service) handleChat(c *echo.Context) error {
	requestID := uuid.New().String()
	personaID := c.Param("personaId")

	// ── 1. Access gate: identity ─────────────────────────────────────────────
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	persona, ok := s.Personas.Lookup(personaID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "persona not found")
	}

	ctx := c.Request().Context()

	// ── 2. Access gate: quota ────────────────────────────────────────────────
	record, err := s.checkQuota(ctx, user.ID, user.Tier)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if record.UsedCount >= record.DailyLimit {
		snap := newQuotaSnapshot(record)
		setRateLimitHeaders(c.Response().Header(), snap)
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error": "daily quota exceeded",
			"quota": snap,
		})
	}

	// ── 3. Charge quota ──────────────────────────────────────────────────────
	// One unit per accepted request, charged before generation is awaited.
	// A request that fails downstream still costs this unit.
	used, err := s.Store.ChargeQuota(ctx, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	record.UsedCount = used
	snap := newQuotaSnapshot(record)

	// ── 4. Assemble context ──────────────────────────────────────────────────
	window := s.assembleContext(ctx, user.ID, personaID, req.History, req.Content)
	messages := buildChatMessages(persona, window)

	// ── 5. Open the generation stream ────────────────────────────────────────
	// Failures here happen before any response bytes, so they surface as a
	// plain HTTP error.
	temperature := persona.Temperature
	stream, err := s.LLM.ChatStream(ctx, messages, llm.GenerationParams{Temperature: &temperature})
	if err != nil {
		slog.Error("generation failed before stream",
			"request", requestID, "user", user.ID, "persona", personaID, "err", err)
		return echo.NewHTTPError(http.StatusBadGateway, "generation failed")
	}

	// ── 6. Set up SSE ────────────────────────────────────────────────────────
	rw := c.Response()
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	setRateLimitHeaders(rw.Header(), snap)
	rw.WriteHeader(http.StatusOK)

	emit := func(eventType, payload string) error {
		data, _ := json.Marshal(map[string]string{"type": eventType, "content": payload})
		if _, err := fmt.Fprintf(rw, "data: %s\n\n", data); err != nil {
			return err
		}
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}
	emitJSON := func(eventType string, obj any) error {
		inner, _ := json.Marshal(obj)
		data, _ := json.Marshal(map[string]json.RawMessage{
			"type":    json.RawMessage(`"` + eventType + `"`),
			"payload": inner,
		})
		if _, err := fmt.Fprintf(rw, "data: %s\n\n", data); err != nil {
			return err
		}
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}

	if err := emitJSON("meta", snap); err != nil {
		stream.Close()
		return nil
	}

	slog.Info("[CHAT]", "request", requestID, "user", user.ID, "persona", personaID,
		"history", len(window.RecentTurns), "memory", window.MemorySummary != "")

	// ── 7. Tee the stream: client + accumulation buffer ──────────────────────
	reply, teeErr := runStreamTee(stream, func(chunk string) error {
		return emit("token", chunk)
	})

	switch {
	case teeErr == nil:
		// fall through to persistence
	case isClientGone(teeErr):
		// Expected condition; the partial reply is discarded, not persisted.
		slog.Debug("client disconnected mid-stream",
			"request", requestID, "user", user.ID, "persona", personaID, "received", len(reply))
		return nil
	default:
		slog.Error("generation failed during stream",
			"request", requestID, "user", user.ID, "persona", personaID, "err", teeErr)
		_ = emit("error", "generation interrupted")
		return nil
	}

	_ = emit("done", requestID)

	// ── 8. Persist the completed turn, detached ──────────────────────────────
	// The response is fully delivered; nothing below may affect it.
	s.finalizers.Add(1)
	go func() {
		defer s.finalizers.Done()
		s.finalizeTurn(requestID, user.ID, personaID, req.Content, reply)
	}()

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence finalizer
// ─────────────────────────────────────────────────────────────────────────────

// finalizeTurn archives the completed exchange and writes it to long-term
// memory. All failures here are logged and dropped: the client response
// has already been delivered in full.
func (s *APIV1Service) finalizeTurn(requestID, userID, personaID, userMessage, assistantReply string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	now := time.Now().Unix()
	for _, row := range []struct {
		role    string
		content string
	}{
		{"user", userMessage},
		{"assistant", assistantReply},
	} {
		if _, err := s.Store.CreateChatTurn(ctx, &store.CreateChatTurn{
			UID:       shortuuid.New(),
			UserID:    userID,
			PersonaID: personaID,
			Role:      row.role,
			Content:   row.content,
			CreatedTs: now,
		}); err != nil {
			slog.Warn("failed to archive chat turn",
				"request", requestID, "user", userID, "persona", personaID, "role", row.role, "err", err)
		}
	}

	if s.Memory != nil {
		if err := s.Memory.WriteTurn(ctx, userID, personaID, userMessage, assistantReply); err != nil {
			slog.Warn("failed to write turn to memory",
				"request", requestID, "user", userID, "persona", personaID, "err", err)
		}
	}
}
