package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forward outcomes.
const (
	ForwardSuccess  = "success"
	ForwardFailed   = "failed"
	ForwardDisabled = "disabled"
)

var (
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvi_relay_callbacks_total",
		Help: "Provider callbacks received by the relay grouped by result",
	}, []string{"result"})

	forwardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvi_relay_forward_total",
		Help: "Downstream forward attempts grouped by outcome",
	}, []string{"outcome"})

	forwardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cvi_relay_forward_duration_seconds",
		Help:    "Duration of downstream forward calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	tavusCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvi_tavus_requests_total",
		Help: "Requests issued to the Tavus API grouped by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	sessionStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvi_session_stage_total",
		Help: "Coaching session stage transitions",
	}, []string{"stage"})

	feedbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cvi_feedback_duration_seconds",
		Help:    "Duration of LLM feedback generation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
	}, []string{"status"})
)

// ObserveCallback counts an inbound callback by result (e.g. forwarded,
// skipped, invalid).
func ObserveCallback(result string) {
	if result == "" {
		result = "unknown"
	}
	callbacksTotal.WithLabelValues(result).Inc()
}

// ObserveForward records a downstream forward attempt.
func ObserveForward(outcome string, duration time.Duration) {
	forwardTotal.WithLabelValues(outcome).Inc()
	if outcome != ForwardDisabled {
		forwardDuration.Observe(duration.Seconds())
	}
}

// ObserveTavusCall records a Tavus API request.
func ObserveTavusCall(endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	tavusCallsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveSessionStage counts a session reaching a stage.
func ObserveSessionStage(stage string) {
	sessionStageTotal.WithLabelValues(stage).Inc()
}

// ObserveFeedback records the duration of a feedback generation.
func ObserveFeedback(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	feedbackDuration.WithLabelValues(status).Observe(duration.Seconds())
}
