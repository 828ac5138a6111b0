package controlplane

import (
	"testing"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

func TestParseInstanceKeyRoundTripsWithInstanceKeyHandle(t *testing.T) {
	key := supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypeComments}

	handle := instanceKeyHandle(key)
	parsed, ok := parseInstanceKey(handle)
	if !ok {
		t.Fatalf("expected %q to parse", handle)
	}
	if parsed != key {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, key)
	}
}

func TestParseInstanceKeyRejectsUnknownScraperType(t *testing.T) {
	if _, ok := parseInstanceKey("bogus:golang"); ok {
		t.Fatal("expected malformed scraper type to be rejected")
	}
}

func TestParseInstanceKeyRejectsMissingSeparator(t *testing.T) {
	if _, ok := parseInstanceKey("golang"); ok {
		t.Fatal("expected missing separator to be rejected")
	}
}

func TestParseScraperTypeAcceptsOnlyKnownValues(t *testing.T) {
	if _, ok := parseScraperType("posts"); !ok {
		t.Fatal("expected posts to be valid")
	}
	if _, ok := parseScraperType("comments"); !ok {
		t.Fatal("expected comments to be valid")
	}
	if _, ok := parseScraperType("users"); ok {
		t.Fatal("expected users to be rejected")
	}
}
