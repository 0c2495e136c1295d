package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/models"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupSuccess(t *testing.T) {
	var requests int
	srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/203.0.113.7", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "fields=")
		fmt.Fprint(w, `{"status":"success","country":"Netherlands","countryCode":"NL","city":"Amsterdam","lat":52.37,"lon":4.89,"isp":"ExampleNet","org":"Example BV"}`)
	})

	c := NewClient(srv.URL, nil, nil)
	loc, err := c.Lookup(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "Amsterdam", loc.City)
	assert.Equal(t, "NL", loc.CountryCode)
	require.NotNil(t, loc.Lat)
	assert.InDelta(t, 52.37, *loc.Lat, 0.001)

	// Second lookup is served from cache.
	_, err = c.Lookup(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestLookupProviderFailure(t *testing.T) {
	srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
	})

	c := NewClient(srv.URL, nil, nil)
	loc, err := c.Lookup(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.Nil(t, loc)
	assert.Contains(t, err.Error(), "reserved range")
}

func TestLookupHTTPError(t *testing.T) {
	srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := NewClient(srv.URL, nil, nil)
	_, err := c.Lookup(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestLookupSkipsPlaceholders(t *testing.T) {
	srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider should not be called")
	})

	c := NewClient(srv.URL, nil, nil)
	for _, ip := range []string{"", "N/A"} {
		loc, err := c.Lookup(context.Background(), ip)
		require.NoError(t, err)
		assert.Nil(t, loc)
	}
}

func TestLookupPrivateRange(t *testing.T) {
	srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("private addresses must resolve locally")
	})

	c := NewClient(srv.URL, nil, nil)
	for _, ip := range []string{"192.168.1.10", "10.0.0.5", "127.0.0.1"} {
		loc, err := c.Lookup(context.Background(), ip)
		require.NoError(t, err)
		require.NotNil(t, loc, "ip %s", ip)
		assert.Equal(t, "Local", loc.Country)
		assert.Equal(t, "Private Network", loc.City)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisCache(client, time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "1.1.1.1")
	assert.False(t, ok)

	cache.Set(ctx, "1.1.1.1", &models.Geolocation{Country: "Australia", City: "Sydney"})
	loc, ok := cache.Get(ctx, "1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, "Sydney", loc.City)

	// Entries expire with the configured TTL.
	mr.FastForward(2 * time.Hour)
	_, ok = cache.Get(ctx, "1.1.1.1")
	assert.False(t, ok)
}
