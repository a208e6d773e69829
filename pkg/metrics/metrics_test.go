package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CollectsSeries(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("celldb_flushes_total", nil, 1)
	r.IncCounter("celldb_flushes_total", nil, 2)
	r.SetGauge("celldb_tables", nil, 4)
	r.SetGauge("celldb_table_rows", map[string]string{"generation": "3"}, 10)
	r.ObserveHistogram("celldb_flush_seconds", nil, 0.5)
	r.ObserveHistogram("celldb_flush_seconds", nil, 1.5)

	assert.Equal(t, float64(3), testutil.ToFloat64(r.counters["celldb_flushes_total"]))
	assert.Equal(t, float64(4), testutil.ToFloat64(r.gauges["celldb_tables"]))
	assert.Equal(t, float64(10), testutil.ToFloat64(r.gauges["celldb_table_rows"].WithLabelValues("3")))

	want := `
# HELP celldb_flushes_total celldb_flushes_total
# TYPE celldb_flushes_total counter
celldb_flushes_total 3
# HELP celldb_table_rows celldb_table_rows
# TYPE celldb_table_rows gauge
celldb_table_rows{generation="3"} 10
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(want),
		"celldb_flushes_total", "celldb_table_rows"))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "celldb_flush_seconds" {
			h := mf.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(2), h.GetSampleCount())
			assert.Equal(t, 2.0, h.GetSampleSum())
			return
		}
	}
	t.Fatal("celldb_flush_seconds was not gathered")
}

func TestRegistry_DropsMismatchedSamples(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("celldb_writes_total", map[string]string{"op": "put"}, 1)

	r.IncCounter("celldb_writes_total", map[string]string{"kind": "put"}, 1)
	r.IncCounter("celldb_writes_total", nil, 1)
	r.IncCounter("celldb_writes_total", map[string]string{"op": "put"}, -1)
	r.SetGauge("celldb_writes_total", nil, 7)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.counters["celldb_writes_total"].WithLabelValues("put")))
	assert.NotContains(t, r.gauges, "celldb_writes_total")
	assert.Equal(t, 1, testutil.CollectAndCount(r.counters["celldb_writes_total"]))
}

func TestNop(t *testing.T) {
	var c Collector = Nop{}
	c.IncCounter("x", nil, 1)
	c.SetGauge("x", nil, 1)
	c.ObserveHistogram("x", nil, 1)
}
