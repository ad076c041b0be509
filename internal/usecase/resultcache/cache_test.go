package resultcache

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-ai/internal/domain"
)

func TestTextRoundTrip(t *testing.T) {
	c := New()

	_, ok := c.GetText("MATH|SPEED|x|no_img")
	assert.False(t, ok)

	c.PutText("MATH|SPEED|x|no_img", "answer")
	got, ok := c.GetText("MATH|SPEED|x|no_img")
	require.True(t, ok)
	assert.Equal(t, "answer", got)
}

func TestTextOverwrite(t *testing.T) {
	c := New()
	c.PutText("k", "first")
	c.PutText("k", "second")

	got, _ := c.GetText("k")
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, c.Stats().TextEntries)
}

func TestAudioStoreIndependent(t *testing.T) {
	c := New()
	clip := &domain.AudioClip{Data: []byte{0, 1}, SampleRate: 24000}
	c.PutAudio("k", clip)

	_, ok := c.GetText("k")
	assert.False(t, ok, "audio and text stores must not share keys")

	got, ok := c.GetAudio("k")
	require.True(t, ok)
	assert.Same(t, clip, got)
}

func TestPutAudioNilIgnored(t *testing.T) {
	c := New()
	c.PutAudio("k", nil)
	_, ok := c.GetAudio("k")
	assert.False(t, ok)
}

func TestStatsCounters(t *testing.T) {
	c := New()
	c.GetText("missing")
	c.PutText("a", "1")
	c.GetText("a")
	c.GetText("a")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestAudioKey(t *testing.T) {
	assert.Equal(t, "TTS|hello", AudioKey("hello"))

	long := strings.Repeat("ă", 150)
	key := AudioKey(long)
	assert.Equal(t, "TTS|"+strings.Repeat("ă", 100), key)

	// Texts that share the first 100 characters share a key.
	assert.Equal(t, AudioKey(long), AudioKey(long+"tail"))
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			c.PutText(key, fmt.Sprintf("v%d", i))
			c.GetText(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Stats().TextEntries)
}
