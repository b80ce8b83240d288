package monitoring

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Endpoint metric names
const (
	EndpointResponseTime = "endpoint_response_time"
	EndpointRequests     = "endpoint_requests"
)

// activeHTTPKey counts in-flight requests before the route is known
const activeHTTPKey = "http"

// Middleware records response time and request counts per route. Metrics are
// tagged with the chi route pattern, the method and success or error; any 5xx
// response, or a panic in next, is counted as an error.
func (m *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		m.adjustActive(activeHTTPKey, 1)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			rec := recover()

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			if rec != nil {
				code = http.StatusInternalServerError
			}

			m.adjustActive(activeHTTPKey, -1)
			m.observeRequest(r, code, m.now().Sub(start).Seconds())

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

func (m *PerformanceMonitor) observeRequest(r *http.Request, code int, seconds float64) {
	endpoint := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		endpoint = rctx.RoutePattern()
	}

	failed := code >= http.StatusInternalServerError
	status := StatusSuccess
	if failed {
		status = StatusError
	}
	tags := map[string]string{
		"endpoint": endpoint,
		"method":   r.Method,
		"status":   status,
		"code":     strconv.Itoa(code),
	}

	m.metrics.RecordHistogram(EndpointResponseTime, seconds, tags)
	m.metrics.IncrementCounter(EndpointRequests, 1, tags)

	if failed {
		key := r.Method + "_" + endpoint
		m.mu.Lock()
		m.errors[key]++
		m.mu.Unlock()
		m.metrics.IncrementCounter(ErrorsMetric, 1, map[string]string{"source": key})
	}
}
