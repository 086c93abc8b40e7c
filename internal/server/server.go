package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/handler"
	appmiddleware "zentrust-donations/internal/middleware"
	"zentrust-donations/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const bodyLimit = "64K"

type Server struct {
	echo            *echo.Echo
	cfg             config.HTTPServer
	logger          *slog.Logger
	donationHandler *handler.DonationHandler
	webhookHandler  *handler.WebhookHandler
}

func NewServer(
	cfg *config.Config,
	donationService service.DonationService,
	webhookService service.WebhookService,
	validator *service.Validator,
	logger *slog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, "Idempotency-Key"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	s := &Server{
		echo:            e,
		cfg:             cfg.HTTP,
		logger:          logger,
		donationHandler: handler.NewDonationHandler(donationService, validator, cfg),
		webhookHandler:  handler.NewWebhookHandler(webhookService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	noStore := appmiddleware.NoStore()
	limiter := s.rateLimiter()

	// -------- donations --------
	api.POST("/donations/create-intent", s.donationHandler.CreateIntent, limiter, noStore)
	api.POST("/stewardship/create-intent", s.donationHandler.CreateIntent, limiter, noStore)
	api.GET("/donations/config", s.donationHandler.Config)
	api.GET("/stripe/payment-intent", s.donationHandler.PaymentStatus, noStore)

	// -------- stripe webhooks --------
	api.POST("/donations/webhook", s.webhookHandler.StripeWebhook)
}

// rateLimiter limits create-intent calls per client IP. A non-positive rate
// disables it.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	if s.cfg.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	burst := int(s.cfg.RateLimit * 2)
	if burst < 1 {
		burst = 1
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.cfg.RateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify client.")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests.")
		},
	})
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			logger.LogAttrs(c.Request().Context(), levelFor(v.Status), "request", slog.Group("http", attrs...))
			return nil
		},
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.cfg.Addr())
	return s.echo.Start(s.cfg.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
