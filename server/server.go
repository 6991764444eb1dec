package server

import (
	"context"
	"postrelay/models"
	"postrelay/relay"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type StatusProvider interface {
	Status() relay.Status
}

type HistoryReader interface {
	History(ctx context.Context, account string, limit int) ([]models.Delivery, error)
}

type ServerConfig struct {
	// Relay whose state is reported on /status
	Relay StatusProvider

	// Optional delivery journal served on /history
	Journal HistoryReader
}

// Returns a fiber.App exposing relay health, status and metrics
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Debug("Request")
		return err
	})

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(compress.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(config.Relay.Status())
	})

	app.Get("/history", func(c *fiber.Ctx) error {
		if config.Journal == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "journal disabled"})
		}
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil || limit < 1 || limit > 500 {
			limit = 20
		}

		deliveries, err := config.Journal.History(c.Context(), config.Relay.Status().Account, limit)
		if err != nil {
			log.WithField("error", err).Error("Failed to read journal")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "journal unavailable"})
		}
		if deliveries == nil {
			deliveries = []models.Delivery{}
		}
		return c.JSON(deliveries)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}
