package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tutor-ai/internal/infra/config"
)

func TestNewPooledTransport_Defaults(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})

	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultMaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
	assert.True(t, tr.ForceAttemptHTTP2)
}

func TestNewPooledTransport_CustomConfig(t *testing.T) {
	tr := NewPooledTransport(15*time.Second, 60*time.Second, config.PoolConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     30,
		IdleConnTimeout:     5 * time.Minute,
	})

	assert.Equal(t, 50, tr.MaxIdleConns)
	assert.Equal(t, 25, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 30, tr.MaxConnsPerHost)
	assert.Equal(t, 5*time.Minute, tr.IdleConnTimeout)
	assert.Equal(t, 60*time.Second, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClientHasNoOverallTimeout(t *testing.T) {
	c := NewHTTPClient(config.LLMConfig{RespTimeout: time.Second})
	assert.Zero(t, c.Timeout)
	assert.NotNil(t, c.Transport)
}
