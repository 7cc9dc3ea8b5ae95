package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/metrics"
	"github.com/smartcity/stationmap/internal/service"
)

// SetupRoutes configures all HTTP routes. prerender starts the background
// warm-up of the popular cities.
func SetupRoutes(app *fiber.App, svc *service.GenerationService, prerender func()) {
	handler := NewHandler(svc, prerender)

	// Health check and metrics
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	{
		api.Get("/popular-cities", handler.ListCities)
		api.Post("/generate-map", handler.GenerateMap)
		api.Post("/prerender-popular", handler.PrerenderPopular)

		api.Get("/status/:slug", handler.GetStatus)
		api.Get("/artifact/:slug", handler.GetArtifact)
		api.Post("/rerender/:slug", handler.Rerender)
		api.Get("/nearest/:slug", handler.GetNearest)

		// Map viewer
		api.Get("/map/:slug", handler.GetMap)
		api.Get("/map/:slug/geojson", handler.GetGeoJSON)
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else if errors.Is(err, domain.ErrNotFound) {
		code = fiber.StatusNotFound
		message = err.Error()
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
