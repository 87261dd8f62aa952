package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports run lifecycle counters to a Prometheus
// registry. Use alongside other observers via NewCompositeObserver.
type PrometheusObserver struct {
	runsCreated *prometheus.CounterVec
	transitions *prometheus.CounterVec
	cacheHits   prometheus.Counter
	retries     prometheus.Counter
}

// NewPrometheusObserver registers the observer's collectors with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		runsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowrun_runs_created_total",
			Help: "Number of run records created, by run kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowrun_state_transitions_total",
			Help: "Number of recorded state transitions, by target state.",
		}, []string{"state"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowrun_cache_hits_total",
			Help: "Number of task runs served from the result cache.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowrun_retries_total",
			Help: "Number of task attempt retries scheduled.",
		}),
	}

	for _, c := range []prometheus.Collector{o.runsCreated, o.transitions, o.cacheHits, o.retries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnRunCreated(ctx context.Context, run *Run) {
	o.runsCreated.WithLabelValues(string(run.Kind)).Inc()
}

func (o *PrometheusObserver) OnStateChange(ctx context.Context, run *Run, state State) {
	o.transitions.WithLabelValues(string(state.Kind)).Inc()
}

func (o *PrometheusObserver) OnCacheHit(ctx context.Context, run *Run, key string) {
	o.cacheHits.Inc()
}

func (o *PrometheusObserver) OnRetry(ctx context.Context, run *Run, attempt int, d time.Duration) {
	o.retries.Inc()
}
