package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsAddr(t *testing.T) {
	opt, err := Options{Addr: "cache:6379", Password: "pw", DB: 2, PoolSize: 20}.build()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, 20, opt.PoolSize)
}

func TestOptionsURL(t *testing.T) {
	opt, err := Options{URL: "redis://:inurl@redis.internal:6380/3", Addr: "ignored:1"}.build()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opt.Addr)
	assert.Equal(t, "inurl", opt.Password)
	assert.Equal(t, 3, opt.DB)

	opt, err = Options{URL: "redis://redis.internal:6380/0", Password: "override"}.build()
	require.NoError(t, err)
	assert.Equal(t, "override", opt.Password)
}

func TestOptionsBadURL(t *testing.T) {
	_, err := Options{URL: "http://not-redis"}.build()
	assert.Error(t, err)
}
