package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveGeneration("succeeded", 4, 90*time.Second)
	rec.ObserveGeneration("succeeded", 2, 30*time.Second)
	rec.ObserveGeneration("timed_out", 30, 300*time.Second)
	rec.ObserveGeneration("invalid_request", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.generations.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.generations.WithLabelValues("timed_out")))

	expected := `
# HELP veo_proxy_poll_attempts Operation status checks made per generation.
# TYPE veo_proxy_poll_attempts histogram
veo_proxy_poll_attempts_bucket{le="1"} 0
veo_proxy_poll_attempts_bucket{le="2"} 1
veo_proxy_poll_attempts_bucket{le="5"} 2
veo_proxy_poll_attempts_bucket{le="10"} 2
veo_proxy_poll_attempts_bucket{le="15"} 2
veo_proxy_poll_attempts_bucket{le="20"} 2
veo_proxy_poll_attempts_bucket{le="25"} 2
veo_proxy_poll_attempts_bucket{le="30"} 3
veo_proxy_poll_attempts_bucket{le="+Inf"} 3
veo_proxy_poll_attempts_sum 36
veo_proxy_poll_attempts_count 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "veo_proxy_poll_attempts"))
}

func TestRecorder_ActiveJobsAndDeliveries(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.JobStarted()
	rec.JobStarted()
	rec.JobFinished()
	rec.ObserveDelivery(nil)
	rec.ObserveDelivery(errors.New("bucket missing"))
	rec.ObserveDelivery(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.activeJobs))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.deliveries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.deliveries.WithLabelValues("error")))
}
