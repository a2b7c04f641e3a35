package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type AppOptions struct {
	BodyLimit       int
	RateLimitMax    int
	RateLimitWindow time.Duration
	// Ready reports whether downstream dependencies are reachable.
	Ready func() bool
	// AccessLog enables the request log line per request.
	AccessLog bool
}

type Handlers struct {
	Upload   *UploadHandler
	Evaluate *EvaluationHandler
	Result   *ResultHandler
}

// NewApp builds the fiber app with middleware and the /api/v1 routes.
func NewApp(opts AppOptions, h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "CV Evaluation Pipeline API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    opts.BodyLimit,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(*fiber.Ctx) bool {
			return opts.Ready == nil || opts.Ready()
		},
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/upload", h.Upload.HandleUpload)
	api.Post("/evaluate", evaluateLimiter(opts), h.Evaluate.HandleEvaluate)
	api.Get("/result/:id", h.Result.HandleGetResult)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "CV Evaluation Pipeline API",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
			},
		})
	})

	return app
}

func evaluateLimiter(opts AppOptions) fiber.Handler {
	limit := opts.RateLimitMax
	if limit <= 0 {
		limit = 30
	}
	window := opts.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many evaluation requests, slow down",
			})
		},
	})
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
