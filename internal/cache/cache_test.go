package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey("gemini", "gemini-2.0-flash", "abc", "prompt")
	b := CacheKey("gemini", "gemini-2.0-flash", "abc", "prompt")
	c := CacheKey("gemini", "gemini-2.0-flash", "abc", "other prompt")
	if a != b {
		t.Error("expected identical inputs to produce identical keys")
	}
	if a == c {
		t.Error("expected different prompts to produce different keys")
	}
	if CacheKey("ab", "c") == CacheKey("a", "bc") {
		t.Error("expected part boundaries to matter")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	value := []byte("response")
	_ = c.Set("k", value, 0)
	value[0] = 'X'

	got, ok := c.Get("k")
	if !ok || string(got) != "response" {
		t.Errorf("expected stored copy %q, got %q (found=%v)", "response", got, ok)
	}

	_ = c.Delete("k")
	if c.Len() != 0 {
		t.Errorf("expected empty cache after delete, got %d entries", c.Len())
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewDiskCache(fs, "/cache", time.Hour)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("expected hit with v, got %q (found=%v)", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if exists, _ := afero.Exists(fs, "/cache/k.cache"); exists {
		t.Error("expected expired entry to be removed")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/cache/k.cache", []byte("not json"), 0o644)

	c := NewDiskCache(fs, "/cache", time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Error("expected corrupt entry to miss")
	}
	if err := c.Delete("missing"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	disk := NewDiskCache(fs, "/cache", time.Hour)
	_ = disk.Set("k", []byte("v"), 0)

	lc := NewLayeredCache(fs, time.Hour, "/cache", time.Hour)
	got, ok := lc.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q (found=%v)", got, ok)
	}
	if _, ok := lc.memory.Get("k"); !ok {
		t.Error("expected value promoted to memory")
	}

	if err := lc.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := lc.Get("k"); ok {
		t.Error("expected miss after clear")
	}
}
