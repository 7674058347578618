// Package metrics expone las métricas Prometheus del servicio.
package metrics

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los collectors HTTP y los del popup.
// Todos los métodos aceptan receptor nil (métricas deshabilitadas).
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	popupResultsTotal    *prometheus.CounterVec
	handshakeEventsTotal *prometheus.CounterVec
}

// New crea las métricas sobre un registry propio. withRuntime agrega los
// collectors de Go y de proceso.
func New(withRuntime bool) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"}),

		popupResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_popup_results_total",
			Help: "Resultados OAuth renderizados por el popup",
		}, []string{"status", "error_code"}),

		handshakeEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_popup_handshake_events_total",
			Help: "Eventos del handshake popup -> opener al compilar el plan",
		}, []string{"event"}),
	}

	cs := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInflight,
		m.popupResultsTotal,
		m.handshakeEventsTotal,
	}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := registerCollector(m.registry, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry devuelve el registry subyacente (tests y collectors extra).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler expone /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordResult cuenta un resultado de popup renderizado.
func (m *Metrics) RecordResult(status, errorCode string) {
	if m == nil {
		return
	}
	if errorCode == "" {
		errorCode = "none"
	}
	m.popupResultsTotal.WithLabelValues(status, errorCode).Inc()
}

// RecordHandshakeEvent cuenta un evento del scheduler.
func (m *Metrics) RecordHandshakeEvent(event string) {
	if m == nil {
		return
	}
	m.handshakeEventsTotal.WithLabelValues(event).Inc()
}

// statusRecorder captura el status code de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Middleware instrumenta requests HTTP (contadores, latencia, inflight).
// El label path usa el patrón de chi cuando existe.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		inflightPath := normalizePath(r.URL.Path)

		m.httpInflight.WithLabelValues(method, inflightPath).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.httpInflight.WithLabelValues(method, inflightPath).Dec()

			pathLabel := inflightPath
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pathLabel = p
				}
			}
			m.httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// normalizePath colapsa segmentos dinámicos a ":param" para acotar la cardinalidad.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
