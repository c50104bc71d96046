// Package metrics exposes Prometheus collectors for the widgets.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iris_voice_calls_total",
		Help: "Voice calls started",
	})

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iris_voice_calls_active",
		Help: "Voice calls currently in progress",
	})

	CallEnds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_voice_call_ends_total",
		Help: "Voice calls ended, by reason",
	}, []string{"reason"})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iris_voice_call_duration_seconds",
		Help:    "Wall time from start to end of a call",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})

	AssistantClips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iris_voice_assistant_clips_total",
		Help: "Audio clips received from the assistant",
	})

	UserUtterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iris_voice_user_utterances_total",
		Help: "Final transcripts sent to the assistant",
	})

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_chat_requests_total",
		Help: "Chat webhook requests by outcome (message key)",
	}, []string{"outcome"})

	ChatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iris_chat_request_duration_seconds",
		Help:    "Chat webhook round-trip latency",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	FormSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_form_submissions_total",
		Help: "Form submissions by form and outcome",
	}, []string{"form", "outcome"})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
