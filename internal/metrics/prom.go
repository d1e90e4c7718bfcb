// README: Prometheus counters/histograms for admission, dispatch, live tracking and provider latency.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder records route engine activity in Prometheus metrics.
type PromRecorder struct {
	joins      *prometheus.CounterVec
	closes     *prometheus.CounterVec
	tracking   *prometheus.CounterVec
	provider   *prometheus.HistogramVec
	openRoutes prometheus.Gauge
}

// NewPromRecorder registers metrics on reg. A nil registerer defaults to the
// global Prometheus registerer.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	joins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_join_decisions_total",
		Help: "Passenger admission decisions by outcome",
	}, []string{"outcome"})
	closes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_route_closes_total",
		Help: "Closed routes by whether the provider order was applied",
	}, []string{"optimized"})
	tracking := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carpool_tracking_outcomes_total",
		Help: "Live location tick outcomes",
	}, []string{"outcome"})
	provider := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carpool_provider_call_seconds",
		Help:    "Routing provider call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "ok"})
	openRoutes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carpool_open_routes",
		Help: "Routes currently admitting passengers",
	})

	var err error
	if joins, err = register(reg, joins); err != nil {
		return nil, err
	}
	if closes, err = register(reg, closes); err != nil {
		return nil, err
	}
	if tracking, err = register(reg, tracking); err != nil {
		return nil, err
	}
	if provider, err = register(reg, provider); err != nil {
		return nil, err
	}
	if openRoutes, err = register(reg, openRoutes); err != nil {
		return nil, err
	}
	return &PromRecorder{joins: joins, closes: closes, tracking: tracking, provider: provider, openRoutes: openRoutes}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *PromRecorder) JoinDecision(outcome string) {
	r.joins.WithLabelValues(outcome).Inc()
}

func (r *PromRecorder) RouteClosed(optimized bool) {
	r.closes.WithLabelValues(strconv.FormatBool(optimized)).Inc()
}

func (r *PromRecorder) TrackingOutcome(outcome string) {
	r.tracking.WithLabelValues(outcome).Inc()
}

func (r *PromRecorder) ProviderCall(op string, d time.Duration, err error) {
	r.provider.WithLabelValues(op, strconv.FormatBool(err == nil)).Observe(d.Seconds())
}

func (r *PromRecorder) OpenRoutes(n int) {
	r.openRoutes.Set(float64(n))
}
