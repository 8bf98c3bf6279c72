package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"aiweb-backend-go/internal/services"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics owns the prometheus collectors of one server. Each server gets its
// own registry so tests can build many servers in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	invocations     *prometheus.CounterVec
	invokeDuration  *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	ocrJobs         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_invocations_total",
			Help: "Model invocations by model and outcome.",
		}, []string{"model", "outcome"}),
		invokeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_invocation_duration_seconds",
			Help:    "Model invocation latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"model"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		ocrJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ocr_jobs_total",
			Help: "Asynchronous OCR jobs by terminal status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveInvoke matches the model adapter's observe hook.
func (m *Metrics) ObserveInvoke(model, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(model, outcome).Inc()
	m.invokeDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLogin(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOCRJob(status string) {
	if m == nil {
		return
	}
	m.ocrJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SystemSnapshot reports host and process resource usage.
func (s *Server) SystemSnapshot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, services.CaptureHost(s.Config.UploadFolder))
}

// ActivitySocket streams the live activity feed to an admin. Browsers may pass
// the session token as ?token= since they cannot set headers on upgrades.
func (s *Server) ActivitySocket(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !user.IsAdmin {
		s.writeServiceError(w, r, errAdminRequired)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: s.allowedOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.requestLogger(r).Warn("activity socket upgrade failed", zap.Error(err))
		return
	}
	s.Hub.Add(conn)
	defer func() {
		s.Hub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.Config.CorsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
