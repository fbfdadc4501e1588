package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PostingsAddedTotal.Add(3)
	m.LookupsTotal.WithLabelValues("hit").Inc()
	m.StoreOpsTotal.WithLabelValues("memory", "put", "ok").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["iidx_postings_added_total"])
	assert.Equal(t, 1.0, values["iidx_lookups_total"])
	assert.Equal(t, 1.0, values["iidx_store_operations_total"])

	// A second set on a fresh registry must not collide.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PostingsNoopTotal.Inc()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "iidx_postings_noop_total 1")
}

func TestServer_ServesAndShutsDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).LookupsTotal.WithLabelValues("miss").Inc()

	srv, err := Listen("127.0.0.1:0", reg)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `iidx_lookups_total{result="miss"} 1`)

	_, err = Listen(srv.Addr(), reg)
	assert.Error(t, err, "port already bound")

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-done)
}
