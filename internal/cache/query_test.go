package cache

import (
	"testing"
	"time"

	"github.com/maritime-tutor/backend/internal/service"
)

func makeResult(count int) *service.SearchResult {
	return &service.SearchResult{
		Citations: []service.Citation{
			{DocumentID: "doc-1", PageNumber: 1, ContentSnippet: "lookout duty text"},
		},
		EvidenceImages: make([]string, count),
	}
}

func TestQueryCache_GetSet(t *testing.T) {
	c := New(1 * time.Hour)
	defer c.Stop()

	_, ok := c.Get("user-1", "what is rule 5?")
	if ok {
		t.Fatal("expected cache miss on empty cache")
	}

	result := makeResult(1)
	c.Set("user-1", "what is rule 5?", result)

	got, ok := c.Get("user-1", "what is rule 5?")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Citations) != 1 || got.Citations[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected cached result: %+v", got)
	}
}

func TestQueryCache_UserIsolation(t *testing.T) {
	c := New(1 * time.Hour)
	defer c.Stop()

	c.Set("user-1", "query", makeResult(1))

	_, ok := c.Get("user-2", "query")
	if ok {
		t.Fatal("user-2 should not see user-1's cache")
	}
}

func TestQueryCache_Expiry(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Stop()

	c.Set("user-1", "query", makeResult(1))

	_, ok := c.Get("user-1", "query")
	if !ok {
		t.Fatal("expected cache hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("user-1", "query")
	if ok {
		t.Fatal("expected cache miss after expiry")
	}
}

func TestQueryCache_InvalidateUser(t *testing.T) {
	c := New(1 * time.Hour)
	defer c.Stop()

	c.Set("user-1", "query-a", makeResult(1))
	c.Set("user-1", "query-b", makeResult(1))
	c.Set("user-2", "query-a", makeResult(1))

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	c.InvalidateUser("user-1")

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after invalidation, got %d", c.Len())
	}

	_, ok := c.Get("user-1", "query-a")
	if ok {
		t.Fatal("user-1 cache should be invalidated")
	}

	_, ok = c.Get("user-2", "query-a")
	if !ok {
		t.Fatal("user-2 cache should survive")
	}
}

func TestQueryCache_Len(t *testing.T) {
	c := New(1 * time.Hour)
	defer c.Stop()

	if c.Len() != 0 {
		t.Fatal("expected empty cache")
	}

	c.Set("u1", "q1", makeResult(1))
	c.Set("u1", "q2", makeResult(1))

	if c.Len() != 2 {
		t.Fatalf("expected 2, got %d", c.Len())
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	k1 := cacheKey("user-1", "hello world")
	k2 := cacheKey("user-1", "hello world")
	if k1 != k2 {
		t.Fatalf("cache key should be deterministic: %s != %s", k1, k2)
	}

	k4 := cacheKey("user-2", "hello world")
	if k1 == k4 {
		t.Fatal("different userID should produce different key")
	}
}
