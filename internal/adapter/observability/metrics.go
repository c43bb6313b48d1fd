package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)

	GuardrailTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardrail_trips_total",
			Help: "Agent calls blocked by a guardrail",
		},
		[]string{"stage", "guard"},
	)
	BillsAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bills_analyzed_total",
			Help: "Bill analyses by outcome",
		},
		[]string{"outcome"},
	)
	ChatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Follow-up chat messages by outcome",
		},
		[]string{"outcome"},
	)
	OTPEmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_emails_sent_total",
			Help: "OTP emails by outcome",
		},
		[]string{"outcome"},
	)
	OTPSessionsCleanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_sessions_cleaned_total",
			Help: "Expired OTP sessions removed by the sweeper",
		},
	)
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(GuardrailTripsTotal)
	prometheus.MustRegister(BillsAnalyzedTotal)
	prometheus.MustRegister(ChatMessagesTotal)
	prometheus.MustRegister(OTPEmailsSentTotal)
	prometheus.MustRegister(OTPSessionsCleanedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one model call.
func ObserveAIRequest(provider, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// GuardrailTripped counts a blocked input or output.
func GuardrailTripped(stage, guard string) {
	GuardrailTripsTotal.WithLabelValues(stage, guard).Inc()
}

// BillAnalyzed counts an analysis outcome (success, rejected, failed).
func BillAnalyzed(outcome string) { BillsAnalyzedTotal.WithLabelValues(outcome).Inc() }

// ChatMessage counts a chat outcome.
func ChatMessage(outcome string) { ChatMessagesTotal.WithLabelValues(outcome).Inc() }

// OTPEmailSent counts an OTP delivery attempt.
func OTPEmailSent(outcome string) { OTPEmailsSentTotal.WithLabelValues(outcome).Inc() }
