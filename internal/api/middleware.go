package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/orderflow/internal/telemetry"
)

// unmatchedRoute — метка маршрута для запросов мимо роутера,
// чтобы произвольные пути не раздували кардинальность метрик.
const unmatchedRoute = "unmatched"

// Recovery восстанавливается после паники.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
				)
				InternalError(c, logger, nil)
			}
		}()

		c.Next()
	}
}

// Logging логирует HTTP запросы.
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	}
}

// Metrics считает запросы и их длительность по шаблону маршрута.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := routeLabel(c)
		telemetry.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Tracing открывает спан на запрос.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "http "+c.Request.Method,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(
			attribute.String("http.route", routeLabel(c)),
			attribute.Int("http.status_code", c.Writer.Status()),
		)

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		telemetry.EndSpan(span, err)
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// noRoute отвечает 404 в формате API.
func noRoute(c *gin.Context) {
	Error(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
}
