package monitoring

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMiddleware struct {
	handler http.Handler
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *PrometheusMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := routePath(r)
	if path == "/metrics" {
		// Skip collecting metrics from metrics endpoint itself
		m.handler.ServeHTTP(w, r)
		return
	}

	timer := prometheus.NewTimer(HttpRequestDuration.WithLabelValues(path, r.Method))
	ActiveConnections.Inc()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	m.handler.ServeHTTP(rec, r)

	timer.ObserveDuration()
	ActiveConnections.Dec()
	HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
}

func NewPrometheusMiddleware(handlerToWrap http.Handler) *PrometheusMiddleware {
	return &PrometheusMiddleware{handlerToWrap}
}

// Middleware adapts NewPrometheusMiddleware to mux.Router.Use.
func Middleware(next http.Handler) http.Handler {
	return NewPrometheusMiddleware(next)
}

// routePath prefers the route template so ids do not explode label cardinality.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
