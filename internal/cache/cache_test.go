package cache

import (
	"testing"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

func TestNewTTLDictRejectsNonPositiveTTL(t *testing.T) {
	if _, err := NewTTLDict[string, int](0); err == nil {
		t.Fatal("expected error for ttl=0")
	}
	if _, err := NewTTLDict[string, int](-time.Second); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestTTLDictExpiresEntries(t *testing.T) {
	d, err := NewTTLDict[string, int](10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	d.Set("a", 1)
	if v, ok := d.Get("a"); !ok || v != 1 {
		t.Fatalf("expected fresh entry to be present")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := d.Get("a"); ok {
		t.Fatalf("expected entry to be expired")
	}
}

func TestAnalyticsCacheInvalidateTenantOnlyRemovesMatchingKeys(t *testing.T) {
	c, err := NewAnalyticsCache(time.Minute, "v1")
	if err != nil {
		t.Fatal(err)
	}

	keyA := AnalyticsKey{Endpoint: "stats", UserID: "hikaru", Platform: models.PlatformLichess, ParamHash: "x"}
	keyB := AnalyticsKey{Endpoint: "stats", UserID: "magnus", Platform: models.PlatformLichess, ParamHash: "x"}

	c.Set(keyA, []byte("a"))
	c.Set(keyB, []byte("b"))

	removed := c.InvalidateTenant("hikaru", models.PlatformLichess)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := c.Get(keyA); ok {
		t.Fatal("expected keyA invalidated")
	}
	if _, ok := c.Get(keyB); !ok {
		t.Fatal("expected keyB to survive")
	}
}
