package observability

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewProcessCollector()
	require.NoError(t, err)
	reg.MustRegister(collector)

	ms, err := StartMetricsServer("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer ms.Shutdown(context.Background())

	resp, err := http.Get("http://" + ms.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sandbox_goroutines")
	assert.Contains(t, string(body), "sandbox_uptime_seconds")
}
