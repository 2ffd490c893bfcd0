// Package api exposes the repository operations over HTTP as JSON.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0x0BSoD/repofeed/internal/model"
	"github.com/0x0BSoD/repofeed/internal/service"
)

type Service interface {
	Search(ctx context.Context, githubURL string) (service.SearchResult, error)
	Create(ctx context.Context, githubURL string) (model.Repository, error)
	ForceGenerate(ctx context.Context, id string) (model.Repository, error)
	GetFeeds(ctx context.Context, id string) (model.Feeds, error)
	GetPending(ctx context.Context) ([]model.Repository, error)
	GetAll(ctx context.Context) ([]model.Repository, error)
	Get(ctx context.Context, id string) (model.Repository, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, message string) (model.Repository, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type urlRequest struct {
	URL string `json:"url"`
}

type statusRequest struct {
	Status model.Status `json:"status"`
	Error  string       `json:"error"`
}

// NewServer returns an echo instance with every route registered.
func NewServer(svc Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	NewHandler(svc).Register(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/search", h.Search)

	r := g.Group("/repositories")
	r.GET("", h.GetAll)
	r.POST("", h.Create)
	r.GET("/pending", h.GetPending)
	r.GET("/:id", h.Get)
	r.GET("/:id/feeds", h.GetFeeds)
	r.POST("/:id/generate", h.ForceGenerate)
	r.PUT("/:id/status", h.UpdateStatus)
}

func (h *Handler) Search(c echo.Context) error {
	var req urlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	res, err := h.svc.Search(c.Request().Context(), req.URL)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Create(c echo.Context) error {
	var req urlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	rec, err := h.svc.Create(c.Request().Context(), req.URL)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ForceGenerate(c echo.Context) error {
	rec, err := h.svc.ForceGenerate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetFeeds(c echo.Context) error {
	feeds, err := h.svc.GetFeeds(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, feeds)
}

func (h *Handler) GetPending(c echo.Context) error {
	recs, err := h.svc.GetPending(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, nonNil(recs))
}

func (h *Handler) GetAll(c echo.Context) error {
	recs, err := h.svc.GetAll(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, nonNil(recs))
}

func (h *Handler) Get(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	rec, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, req.Error)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func nonNil(recs []model.Repository) []model.Repository {
	if recs == nil {
		return []model.Repository{}
	}
	return recs
}
