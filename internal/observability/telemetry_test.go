package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTelemetryNeedsServiceName(t *testing.T) {
	_, err := InitTelemetry(context.Background(), TelemetryConfig{Endpoint: "127.0.0.1:4318"})
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(0).Description())
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOnSampler", sampler(3).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
