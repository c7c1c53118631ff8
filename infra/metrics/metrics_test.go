package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObjectsCollected.WithLabelValues("refcount").Add(3)
	m.ObjectsCollected.WithLabelValues("cycle").Add(3)
	m.Runs.Inc()
	m.PoolSize.Set(10)
	m.SectionDuration.WithLabelValues("pooling").Observe(0.01)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ObjectsCollected.WithLabelValues("cycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.PoolSize))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "memlab_objects_collected_total")
	assert.Contains(t, string(body), "go_goroutines")
}
