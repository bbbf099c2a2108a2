// Package metrics define los collectors Prometheus del ciclo de vida de grants.
// Los collectors son globales; Register los publica en un registry.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idp"

var (
	AuthorizationRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_requests_total",
		Help:      "Authorization requests por perfil y estado",
	}, []string{"profile", "status"})

	CodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_codes_issued_total",
		Help:      "Authorization codes emitidos",
	})

	TokenRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_requests_total",
		Help:      "Requests al token endpoint por grant_type y resultado",
	}, []string{"grant_type", "result"}) // result: ok | código de error OAuth

	TokenLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "token_request_duration_seconds",
		Help:      "Latencia del token endpoint",
		Buckets:   prometheus.DefBuckets,
	}, []string{"grant_type"})

	CibaTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ciba_transitions_total",
		Help:      "Transiciones de CibaGrant por estado destino",
	}, []string{"status"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ciba_notifications_total",
		Help:      "Notificaciones CIBA al client por modo y resultado",
	}, []string{"mode", "result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "route"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		AuthorizationRequests, CodesIssued, TokenRequests, TokenLatency,
		CibaTransitions, Notifications, HTTPRequests, HTTPDuration, HTTPInflight,
	}
}

// Register publica los collectors en reg (o el default si es nil).
// Registrar dos veces no es un error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// ObserveToken registra resultado y latencia de un token request.
func ObserveToken(grantType, result string, start time.Time) {
	TokenRequests.WithLabelValues(grantType, result).Inc()
	TokenLatency.WithLabelValues(grantType).Observe(time.Since(start).Seconds())
}

// Result devuelve "ok" o el código de error OAuth.
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
