package inbound

import (
	"testing"
	"time"
)

func TestDedupCacheSeen(t *testing.T) {
	c := NewDedupCache(time.Minute)

	if c.Seen("slack", "Ev1") {
		t.Error("first observation reported as seen")
	}
	if !c.Seen("slack", "Ev1") {
		t.Error("second observation not reported as seen")
	}
	// Same key under another provider is a different event.
	if c.Seen("gmail", "Ev1") {
		t.Error("provider must namespace dedup keys")
	}
}

func TestDedupCacheWindowExpiry(t *testing.T) {
	c := NewDedupCache(10 * time.Millisecond)

	if c.Seen("gmail", "chan:1") {
		t.Error("first observation reported as seen")
	}
	time.Sleep(20 * time.Millisecond)
	if c.Seen("gmail", "chan:1") {
		t.Error("observation outside the window reported as seen")
	}
}

func TestDedupCacheEmptyKey(t *testing.T) {
	c := NewDedupCache(time.Minute)

	// Events without a dedup key are never treated as duplicates.
	if c.Seen("slack", "") || c.Seen("slack", "") {
		t.Error("empty dedup key must never match")
	}
}
