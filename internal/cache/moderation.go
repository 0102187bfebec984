package cache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/maritime-tutor/backend/internal/service"
)

// ModerationCache caches moderation decisions by message fingerprint.
// Thread-safe via sync.RWMutex. Entries auto-expire after TTL (default 10m).
type ModerationCache struct {
	mu      sync.RWMutex
	entries map[string]*moderationEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

type moderationEntry struct {
	decision  service.ModerationDecision
	expiresAt time.Time
}

// DefaultModerationCacheTTL is the spec's 10-minute moderation cache window.
const DefaultModerationCacheTTL = 10 * time.Minute

var whitespaceRE = regexp.MustCompile(`\s+`)

// NewModerationCache creates a ModerationCache with the given TTL and starts
// background cleanup.
func NewModerationCache(ttl time.Duration) *ModerationCache {
	if ttl <= 0 {
		ttl = DefaultModerationCacheTTL
	}
	c := &ModerationCache{
		entries: make(map[string]*moderationEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Fingerprint computes a stable key for a message: lowercased, whitespace-
// normalized, then hashed. Two messages that differ only in casing or
// incidental spacing collapse to the same cache entry.
func Fingerprint(message string) string {
	normalized := whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(message)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// Get returns a cached decision for a fingerprint if present and not expired.
func (c *ModerationCache) Get(fingerprint string) (service.ModerationDecision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		return service.ModerationDecision{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, fingerprint)
		c.mu.Unlock()
		return service.ModerationDecision{}, false
	}
	return entry.decision, true
}

// Set stores a decision for a fingerprint.
func (c *ModerationCache) Set(fingerprint string, decision service.ModerationDecision) {
	c.mu.Lock()
	c.entries[fingerprint] = &moderationEntry{decision: decision, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *ModerationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *ModerationCache) Stop() {
	close(c.stopCh)
}

func (c *ModerationCache) cleanup() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			before := len(c.entries)
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			after := len(c.entries)
			c.mu.Unlock()
			if before != after {
				slog.Debug("[CACHE] moderation cleanup", "removed", before-after, "remaining", after)
			}
		case <-c.stopCh:
			return
		}
	}
}
