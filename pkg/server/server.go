// Package server exposes the chat agent over HTTP with an SSE response
// stream.
package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/tool/knowledge"
)

// New creates and configures the HTTP server. The tool registry is built
// once here; it is static for the process lifetime.
func New(gemini adapter.Gemini, repo repository.Repository) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())

	registry := tool.New(
		knowledge.NewAddResource(repo, gemini),
		knowledge.NewGetInformation(repo, gemini),
	)

	h := &handler{
		gemini:   gemini,
		registry: registry,
	}

	e.POST("/chat", h.Chat)
	e.GET("/health", h.Health)

	return e
}
