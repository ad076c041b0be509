// Package resultcache memoizes final agent texts and synthesized audio for
// the lifetime of the process. Entries are never evicted.
package resultcache

import (
	"sync"
	"sync/atomic"

	"tutor-ai/internal/domain"
)

// audioKeyPrefixLen is how many runes of the spoken text form an audio key.
const audioKeyPrefixLen = 100

// Stats is a snapshot of cache counters.
type Stats struct {
	TextEntries  int   `json:"text_entries"`
	AudioEntries int   `json:"audio_entries"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
}

// Cache holds two independent stores: request fingerprint to final text,
// and audio key to clip. Writes insert or overwrite; nothing is removed.
type Cache struct {
	mu    sync.RWMutex
	text  map[string]string
	audio map[string]*domain.AudioClip

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		text:  make(map[string]string),
		audio: make(map[string]*domain.AudioClip),
	}
}

// GetText returns the cached text for a fingerprint.
func (c *Cache) GetText(fingerprint string) (string, bool) {
	c.mu.RLock()
	v, ok := c.text[fingerprint]
	c.mu.RUnlock()
	c.count(ok)
	return v, ok
}

// PutText stores text under fingerprint. Concurrent identical misses may
// both write; the later write wins.
func (c *Cache) PutText(fingerprint, text string) {
	c.mu.Lock()
	c.text[fingerprint] = text
	c.mu.Unlock()
}

// GetAudio returns the cached clip for key.
func (c *Cache) GetAudio(key string) (*domain.AudioClip, bool) {
	c.mu.RLock()
	v, ok := c.audio[key]
	c.mu.RUnlock()
	c.count(ok)
	return v, ok
}

// PutAudio stores clip under key. Nil clips are ignored.
func (c *Cache) PutAudio(key string, clip *domain.AudioClip) {
	if clip == nil {
		return
	}
	c.mu.Lock()
	c.audio[key] = clip
	c.mu.Unlock()
}

// Stats returns current sizes and hit counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		TextEntries:  len(c.text),
		AudioEntries: len(c.audio),
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}
}

func (c *Cache) count(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// AudioKey derives the audio cache key from the first 100 characters of
// the text to be spoken.
func AudioKey(text string) string {
	r := []rune(text)
	if len(r) > audioKeyPrefixLen {
		r = r[:audioKeyPrefixLen]
	}
	return "TTS|" + string(r)
}
