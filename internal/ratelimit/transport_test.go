package ratelimit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: make(http.Header)}
}

// TestStatsEstimatedCostMatchesActualHTTPRequests covers testable invariant
// #6: for any cycle, estimated_cost_usd equals actual_http_requests * rate,
// not the lifetime request count.
func TestStatsEstimatedCostMatchesActualHTTPRequests(t *testing.T) {
	ct := &CountingTransport{
		base:           roundTripFunc(func(*http.Request) (*http.Response, error) { return okResponse(), nil }),
		costPerRequest: 0.00024,
		ringCap:        10,
	}

	req, err := http.NewRequest(http.MethodGet, "https://oauth.reddit.com/r/golang/new.json", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := ct.RoundTrip(req)
		require.NoError(t, err)
	}

	stats := ct.Stats()
	require.EqualValues(t, 3, stats.CycleRequests)
	require.EqualValues(t, 3, stats.LifetimeRequests)
	require.InDelta(t, 3*0.00024, stats.EstimatedCostUSD, 1e-9)

	ct.ResetCycle()
	_, err = ct.RoundTrip(req)
	require.NoError(t, err)

	stats = ct.Stats()
	require.EqualValues(t, 1, stats.CycleRequests, "ResetCycle must zero the per-cycle counter")
	require.EqualValues(t, 4, stats.LifetimeRequests, "lifetime counter survives a cycle reset")
	require.InDelta(t, 0.00024, stats.EstimatedCostUSD, 1e-9,
		"cost must track the per-cycle count, not the lifetime count, across a reset")
}
