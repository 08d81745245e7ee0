package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"userapi_tester/internal/model"
)

// Run holds the counters of a single harness run. Each run owns its registry
// so repeated runs in one process (tests) never collide.
type Run struct {
	reg *prometheus.Registry

	mRecords   *prometheus.CounterVec
	mProbes    *prometheus.CounterVec
	mConnFails prometheus.Counter
	mLatency   *prometheus.HistogramVec
	mSkipped   prometheus.Counter
	mLastRun   prometheus.Gauge
}

func New() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		mRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_check_records_total", Help: "Check records by verdict",
		}, []string{"verdict"}),
		mProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_probes_total", Help: "Probes sent, by method and status code",
		}, []string{"method", "code"}),
		mConnFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userapi_probe_connection_failures_total", Help: "Probes that did not complete a round-trip",
		}),
		mLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userapi_probe_duration_seconds",
			Help:    "Probe wall-clock duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 7.5, 10, 30},
		}, []string{"method"}),
		mSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userapi_checks_skipped_total", Help: "Dependent checks skipped because no user was created",
		}),
		mLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userapi_last_run_timestamp_seconds", Help: "Unix time the run finished",
		}),
	}
	r.reg.MustRegister(r.mRecords, r.mProbes, r.mConnFails, r.mLatency, r.mSkipped, r.mLastRun)
	return r
}

func (r *Run) ObserveRecord(v model.Verdict) {
	if r == nil {
		return
	}
	r.mRecords.WithLabelValues(string(v)).Inc()
}

func (r *Run) ObserveProbe(method string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.mProbes.WithLabelValues(method, fmt.Sprint(code)).Inc()
	r.mLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (r *Run) ObserveConnectionFailure(method string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.mConnFails.Inc()
	r.mLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (r *Run) ObserveSkipped() {
	if r == nil {
		return
	}
	r.mSkipped.Inc()
}

func (r *Run) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Run) WriteTextfile(path string) error {
	r.mLastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
