package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("rbac:catalog_sync").End(nil))
	err := errors.New("boom")
	assert.Equal(t, err, m.Track("rbac:catalog_sync").End(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rbac:catalog_sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rbac:catalog_sync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("rbac:catalog_sync")))
}

func TestAddPruned(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddPruned("role", 3)
	m.AddPruned("direct", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pruned.WithLabelValues("role")))

	var nilMetrics *Metrics
	nilMetrics.AddPruned("role", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
