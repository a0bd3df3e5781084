package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.CacheLookup("user", true)
	m.CacheLookup("user", true)
	m.CacheLookup("user", false)
	m.TierCall("user", TierRemote, "GetByID", true)
	m.TierCall("user", TierLocal, "GetByID", false)
	m.Fallback("user", "GetAll", TierRemote)
	m.MirrorFailure("user", TierLocal, "Create")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("user", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("user", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierCallsTotal.WithLabelValues("user", "remote", "GetByID", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierCallsTotal.WithLabelValues("user", "local", "GetByID", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("user", "GetAll", "remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MirrorFailuresTotal.WithLabelValues("user", "local", "Create")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestPrometheus_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus(reg)

	assert.Panics(t, func() { NewPrometheus(reg) })
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() {
		r.CacheLookup("x", true)
		r.TierCall("x", TierLocal, "op", false)
		r.Fallback("x", "op", TierLocal)
		r.MirrorFailure("x", TierCache, "op")
	})
}
