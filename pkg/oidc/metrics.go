package oidc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ezlogin"

// Metrics counts authorization outcomes and token exchanges. A nil
// *Metrics records nothing.
type Metrics struct {
	authorizeTotal   *prometheus.CounterVec
	exchangeTotal    *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
}

// NewMetrics creates the provider metrics on reg, or the default registerer if nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		authorizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "authorize_total",
			Help:      "Authorization requests by outcome",
		}, []string{"outcome"}),
		exchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_exchange_total",
			Help:      "Token exchanges by result",
		}, []string{"result"}),
		exchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "token_exchange_duration_seconds",
			Help:      "Latency of token exchanges",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	if m.authorizeTotal, err = register(reg, m.authorizeTotal); err != nil {
		return nil, err
	}
	if m.exchangeTotal, err = register(reg, m.exchangeTotal); err != nil {
		return nil, err
	}
	if m.exchangeDuration, err = register(reg, m.exchangeDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeAuthorize(outcome string) {
	if m == nil {
		return
	}
	m.authorizeTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeExchange(result string, started time.Time) {
	if m == nil {
		return
	}
	m.exchangeTotal.WithLabelValues(result).Inc()
	m.exchangeDuration.Observe(time.Since(started).Seconds())
}
