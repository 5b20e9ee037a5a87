// Package metrics exposes Prometheus collectors for video generation jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "veo_proxy"

// Recorder groups the collectors so tests can use a private registry.
type Recorder struct {
	generations  *prometheus.CounterVec
	pollAttempts prometheus.Histogram
	duration     *prometheus.HistogramVec
	activeJobs   prometheus.Gauge
	deliveries   *prometheus.CounterVec
}

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Video generation jobs by outcome.",
		}, []string{"outcome"}),
		pollAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_attempts",
			Help:      "Operation status checks made per generation.",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 25, 30},
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time from job start to terminal state.",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 240, 300, 600},
		}, []string{"outcome"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently pending or running.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Videos uploaded to object storage by result.",
		}, []string{"result"}),
	}
}

// Default is registered with the default Prometheus registry.
var Default = NewRecorder(prometheus.DefaultRegisterer)

// ObserveGeneration records a finished job.
func (r *Recorder) ObserveGeneration(outcome string, attempts int, elapsed time.Duration) {
	r.generations.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		r.pollAttempts.Observe(float64(attempts))
	}
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// JobStarted counts an accepted job as active.
func (r *Recorder) JobStarted() { r.activeJobs.Inc() }

// JobFinished removes a job from the active count.
func (r *Recorder) JobFinished() { r.activeJobs.Dec() }

// ObserveDelivery records an object storage upload.
func (r *Recorder) ObserveDelivery(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.deliveries.WithLabelValues(result).Inc()
}
