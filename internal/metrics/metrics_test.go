package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reddit-fleet/controller/internal/metrics"
)

func TestScraperCyclesTotalIncrements(t *testing.T) {
	metrics.ScraperCyclesTotal.Reset()
	metrics.ScraperCyclesTotal.WithLabelValues("golang", "posts").Inc()
	metrics.ScraperCyclesTotal.WithLabelValues("golang", "posts").Inc()

	got := testutil.ToFloat64(metrics.ScraperCyclesTotal.WithLabelValues("golang", "posts"))
	if got != 2 {
		t.Fatalf("expected counter value 2, got %v", got)
	}
}

func TestRateGovernorRemainingTracksLastObservedValue(t *testing.T) {
	metrics.RateGovernorRemaining.WithLabelValues("acct-1").Set(42)

	got := testutil.ToFloat64(metrics.RateGovernorRemaining.WithLabelValues("acct-1"))
	if got != 42 {
		t.Fatalf("expected gauge value 42, got %v", got)
	}
}

func TestSuggestionsSyncedTotalIsACounter(t *testing.T) {
	before := testutil.ToFloat64(metrics.SuggestionsSyncedTotal)
	metrics.SuggestionsSyncedTotal.Add(3)
	after := testutil.ToFloat64(metrics.SuggestionsSyncedTotal)

	if after-before != 3 {
		t.Fatalf("expected counter to increase by 3, got delta %v", after-before)
	}
}
