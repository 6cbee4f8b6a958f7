package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Audit is the structured sink for moderation action records.
	Audit *zap.Logger

	filterVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_verdicts_total",
			Help: "Content filter verdicts by filter name",
		},
		[]string{"filter"},
	)

	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Executed moderation actions by type",
		},
		[]string{"action"},
	)

	floodDetectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flood_detections_total",
			Help: "Messages that tripped the flood window",
		},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_processing_duration_seconds",
			Help:    "Time spent processing inbound messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

// Server owns the metrics endpoint; registered with the lifecycle
// runtime.
type Server struct {
	addr string
	srv  *http.Server
}

func Init() error {
	var err error
	Audit, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(
		filterVerdictsTotal,
		moderationActionsTotal,
		floodDetectionsTotal,
		messageProcessingDuration,
	)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return nil
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func RecordFilterVerdict(filter string) {
	filterVerdictsTotal.WithLabelValues(filter).Inc()
}

func RecordModerationAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

func RecordFloodDetection() {
	floodDetectionsTotal.Inc()
}

// StartMessageProcessing returns a closure recording the elapsed time
// under the given status label.
func StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
