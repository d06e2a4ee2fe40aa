package metrics

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

const maxScrapesInFlight = 4

// MetricsHandler serves the service registry to Prometheus
type MetricsHandler struct {
	gatherer prometheus.Gatherer
	logger   *logger.Logger
}

func NewMetricsHandler(gatherer prometheus.Gatherer, logger *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the /metrics endpoint. A collector failing mid-scrape
// is logged and the rest of the registry is still served.
func (h *MetricsHandler) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{
		ErrorLog:            scrapeLogger{h.logger},
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxScrapesInFlight,
		EnableOpenMetrics:   true,
	}))
}

// scrapeLogger adapts the service logger to promhttp.Logger.
type scrapeLogger struct {
	logger *logger.Logger
}

func (l scrapeLogger) Println(v ...interface{}) {
	l.logger.Error("[MetricsHandler] scrape failed", map[string]string{
		"error": fmt.Sprint(v...),
	})
}
