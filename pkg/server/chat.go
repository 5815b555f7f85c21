package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// requestBudget caps one whole request, model and tool calls included.
// When it runs out the stream is closed with whatever was produced.
const requestBudget = 30 * time.Second

type handler struct {
	gemini   adapter.Gemini
	registry *tool.Registry
}

// chatRequest is the POST /chat body: the prior conversation, last turn
// being the new user message.
type chatRequest struct {
	Messages []model.Message `json:"messages"`
}

// Chat handles POST /chat and streams chat events as SSE data frames,
// terminated by a done event.
func (h *handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "messages is required"})
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != model.RoleUser {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "last message must have role user"})
	}

	history, err := model.ToContents(req.Messages[:len(req.Messages)-1])
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	session, err := chat.New(chat.NewInput{
		Gemini:   h.gemini,
		Registry: h.registry,
		History:  history,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestBudget)
	defer cancel()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	err = session.Stream(ctx, last.Content, func(event *model.ChatEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The error event has already been sent on the stream; the response
		// status is fixed at this point
		logging.From(ctx).Error("chat stream failed", "error", err)
	}

	return nil
}

// Health handles GET /health
func (h *handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
