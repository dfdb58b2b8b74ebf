package metrics_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, c.Write(&m))

	return m.GetCounter().GetValue()
}

func TestIncrementRegexCompile(t *testing.T) {
	before := counterValue(t, metrics.RegexCompilesTotal)

	metrics.IncrementRegexCompile()

	require.Equal(t, before+1, counterValue(t, metrics.RegexCompilesTotal))
}

func TestIncrementMatchResult(t *testing.T) {
	before := counterValue(t, metrics.MatchResultsTotal.WithLabelValues(metrics.ResultBlocked))

	metrics.IncrementMatchResult(metrics.ResultBlocked)

	require.Equal(t, before+1, counterValue(t, metrics.MatchResultsTotal.WithLabelValues(metrics.ResultBlocked)))
}

func TestRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	mfs, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
