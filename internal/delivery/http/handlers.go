package http

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/logger"
	"github.com/smartcity/stationmap/internal/render"
	"github.com/smartcity/stationmap/internal/service"
	"github.com/smartcity/stationmap/pkg/utils"
)

// Handler contains all HTTP handlers
type Handler struct {
	svc *service.GenerationService
	// prerender starts the popular-city warm-up outside the request scope.
	prerender func()
}

// NewHandler creates a new handler. prerender is called by
// POST /api/prerender-popular; nil runs the warm-up unbounded by shutdown.
func NewHandler(svc *service.GenerationService, prerender func()) *Handler {
	if prerender == nil {
		prerender = func() { svc.StartPrerender(context.Background()) }
	}
	return &Handler{
		svc:       svc,
		prerender: prerender,
	}
}

// GenerateRequest is the body of POST /api/generate-map
type GenerateRequest struct {
	City            string `json:"city"`
	ForceRegenerate bool   `json:"force_regenerate"`
}

// MapSummary describes a generated map
type MapSummary struct {
	City         string `json:"city"`
	Slug         string `json:"slug"`
	GenerationID string `json:"generation_id"`
	Stations     int    `json:"stations"`
	Regions      int    `json:"regions"`
	MapURL       string `json:"map_url"`
	GeoJSONURL   string `json:"geojson_url"`
	Cached       bool   `json:"cached"`
	Message      string `json:"message"`
}

// NearestResponse is a nearest-station answer rounded for display
type NearestResponse struct {
	Station        domain.Station `json:"station"`
	DistanceMeters float64        `json:"distance_meters"`
	WalkingMinutes float64        `json:"walking_minutes"`
	Inside         bool           `json:"inside"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if err := h.svc.Health(c.Context()); err != nil {
		logger.L().Warn("health_check_failed", "err", err)
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": "stationmap",
		"version": "1.0.0",
	})
}

// ListCities returns the popular and previously generated cities
func (h *Handler) ListCities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"cities":  h.svc.ListKnownCities(c.Context()),
	})
}

// GenerateMap returns the map of a city, generating it on a cache miss
func (h *Handler) GenerateMap(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req.City = strings.TrimSpace(req.City)
	if req.City == "" {
		return fiber.NewError(fiber.StatusBadRequest, "City name cannot be empty")
	}

	a, cached, err := h.svc.GetOrGenerate(c.Context(), req.City, req.ForceRegenerate)
	if err != nil {
		return toFiberError(err)
	}

	message := "Map generated successfully"
	if cached {
		message = "Map loaded from cache"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summarize(a, cached, message),
	})
}

// Rerender rebuilds a map from its cached station data
func (h *Handler) Rerender(c *fiber.Ctx) error {
	a, err := h.svc.Rerender(c.Context(), c.Params("slug"))
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summarize(a, false, "Map re-rendered from cached data"),
	})
}

// PrerenderPopular starts generating the popular cities in the background
func (h *Handler) PrerenderPopular(c *fiber.Ctx) error {
	h.prerender()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Pre-rendering started in background",
	})
}

// GetStatus returns the generation record of a slug
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.svc.Status(c.Params("slug")),
	})
}

// GetArtifact returns the cached artifact of a slug
func (h *Handler) GetArtifact(c *fiber.Ctx) error {
	a, err := h.svc.GetCachedArtifact(c.Context(), c.Params("slug"))
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    a,
	})
}

// GetNearest answers a click on the map with the closest station
func (h *Handler) GetNearest(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon must be numbers")
	}

	res, err := h.svc.QueryNearest(c.Context(), c.Params("slug"), lat, lon)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": NearestResponse{
			Station:        res.Station,
			DistanceMeters: utils.RoundTo(res.DistanceMeters, 1),
			WalkingMinutes: utils.RoundTo(res.WalkingMinutes, 1),
			Inside:         res.Inside,
		},
	})
}

// GetMap serves the HTML viewer of a cached map
func (h *Handler) GetMap(c *fiber.Ctx) error {
	a, err := h.svc.GetCachedArtifact(c.Context(), c.Params("slug"))
	if err != nil {
		return toFiberError(err)
	}

	var buf bytes.Buffer
	if err := render.HTML(&buf, a, render.Links{
		GeoJSON: "/api/map/" + a.Slug + "/geojson",
		Nearest: "/api/nearest/" + a.Slug,
	}); err != nil {
		logger.L().Error("map_render_failed", "slug", a.Slug, "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render map")
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// GetGeoJSON returns the regions and stations of a cached map
func (h *Handler) GetGeoJSON(c *fiber.Ctx) error {
	a, err := h.svc.GetCachedArtifact(c.Context(), c.Params("slug"))
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(render.FeatureCollection(a))
}

func summarize(a *domain.CityMapArtifact, cached bool, message string) MapSummary {
	regions := 0
	for _, r := range a.Regions {
		if !r.Empty() {
			regions++
		}
	}
	return MapSummary{
		City:         a.City,
		Slug:         a.Slug,
		GenerationID: a.GenerationID,
		Stations:     len(a.Stations),
		Regions:      regions,
		MapURL:       "/api/map/" + a.Slug,
		GeoJSONURL:   "/api/map/" + a.Slug + "/geojson",
		Cached:       cached,
		Message:      message,
	}
}

// toFiberError maps domain errors to HTTP status codes.
func toFiberError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCity), errors.Is(err, domain.ErrInvalidCoordinates):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDegenerateInput):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		logger.L().Error("request_failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Error generating map: "+err.Error())
	}
}
