package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues(opGet).Inc()
	m.FetchedEntriesTotal.Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "histcache_engine_requests_total")
	assert.Contains(t, names, "histcache_engine_fetched_entries_total")
	assert.Contains(t, names, "histcache_engine_shared_fetches_total")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewMetrics_NilRegistryStillCounts(t *testing.T) {
	m := NewMetrics(nil)
	m.ConflictsTotal.Inc()

	assert.Equal(t, float64(1), promtest.ToFloat64(m.ConflictsTotal))
}
