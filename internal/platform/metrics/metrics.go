// Package metrics holds the Prometheus collectors of the coordination service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

const namespace = "psicoapp"

type Metrics struct {
	Registry *prometheus.Registry

	httpDuration  *prometheus.HistogramVec
	claims        *prometheus.CounterVec
	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	reminders     *prometheus.CounterVec
}

// New builds the collectors on a private registry so tests can create as many
// as they like.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_claims_total",
			Help:      "Claim and release attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Appointment creation attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status changes by target status and outcome.",
		}, []string{"to", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by type and outcome.",
		}, []string{"type", "outcome"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder scheduling and delivery by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration, m.claims, m.bookings, m.transitions, m.notifications, m.reminders,
	)
	return m
}

// Outcome labels an operation result: "ok" or the lower-cased error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return "validation"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindInvalidState:
		return "invalid_state"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindUnavailable:
		return "unavailable"
	case apperr.KindUnauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}

func (m *Metrics) ObserveClaim(op string, err error) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) ObserveBooking(source string, err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(source, Outcome(err)).Inc()
}

func (m *Metrics) ObserveTransition(to string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, Outcome(err)).Inc()
}

func (m *Metrics) ObserveNotification(typ string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(typ, Outcome(err)).Inc()
}

func (m *Metrics) ObserveReminder(stage, outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(stage, outcome).Inc()
}

// Middleware records request latency keyed by the route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if k := apperr.KindOf(err); k != apperr.KindInternal {
					status = httpStatus(k)
				} else {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func httpStatus(k apperr.Kind) int {
	switch k {
	case apperr.KindUnauthorized:
		return 401
	case apperr.KindForbidden:
		return 403
	case apperr.KindNotFound:
		return 404
	case apperr.KindConflict:
		return 409
	default:
		return 400
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
