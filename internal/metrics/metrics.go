// Package metrics holds the Prometheus collectors shared by the coach and
// the interview service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_turns_total",
		Help: "Turns closed by the coordinator, by outcome",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_turn_duration_seconds",
		Help:    "Time from done-speaking to the turn returning to idle",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	transportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_transport_errors_total",
		Help: "Failed turn requests to the interview service, by error kind",
	}, []string{"kind"})

	captureRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_capture_restarts_total",
		Help: "Recognition sessions restarted after an unexpected end",
	}, []string{"reason"})

	playbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_playback_failures_total",
		Help: "Interviewer replies whose audio failed to play",
	})

	reasoningRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_reasoning_requests_total",
		Help: "Interviewer replies generated by the service, by status",
	}, []string{"status"})

	reasoningLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_reasoning_latency_seconds",
		Help:    "Latency of generating an interviewer reply including speech synthesis",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	})
)

// RecordTurn records a closed turn. outcome is one of completed, empty,
// transport_error or ended.
func RecordTurn(outcome string, started time.Time) {
	turnsTotal.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		turnDuration.Observe(time.Since(started).Seconds())
	}
}

func RecordTransportError(kind string) {
	transportErrors.WithLabelValues(kind).Inc()
}

func RecordCaptureRestart(reason string) {
	captureRestarts.WithLabelValues(reason).Inc()
}

func RecordPlaybackFailure() {
	playbackFailures.Inc()
}

// RecordReasoning records one generate-voice request.
func RecordReasoning(success bool, started time.Time) {
	status := "success"
	if !success {
		status = "error"
	}
	reasoningRequests.WithLabelValues(status).Inc()
	reasoningLatency.Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
