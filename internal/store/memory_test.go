package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get round trip", func(t *testing.T) {
		st := NewMemoryStore()
		err := st.Put(ctx, "US_STOCK:AAPL", []byte(`{"price":100}`), time.Now().Add(time.Hour))
		require.NoError(t, err)

		item, err := st.Get(ctx, "US_STOCK:AAPL")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"price":100}`), item.Value)
		assert.False(t, item.Expired(time.Now()))
	})

	t.Run("missing key returns not found", func(t *testing.T) {
		st := NewMemoryStore()
		_, err := st.Get(ctx, "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put(ctx, "k", []byte("v"), time.Now().Add(time.Hour)))
		require.NoError(t, st.Delete(ctx, "k"))
		_, err := st.Get(ctx, "k")
		assert.True(t, IsNotFound(err))
	})

	t.Run("delete of missing key is a no-op", func(t *testing.T) {
		st := NewMemoryStore()
		assert.NoError(t, st.Delete(ctx, "missing"))
	})

	t.Run("stored values are isolated from caller mutation", func(t *testing.T) {
		st := NewMemoryStore()
		payload := []byte("original")
		require.NoError(t, st.Put(ctx, "k", payload, time.Now().Add(time.Hour)))
		payload[0] = 'X'

		item, err := st.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), item.Value)
	})

	t.Run("get many returns present keys in one pass", func(t *testing.T) {
		st := NewMemoryStore()
		expiry := time.Now().Add(time.Hour)
		require.NoError(t, st.Put(ctx, "US_STOCK:AAPL", []byte("a"), expiry))
		require.NoError(t, st.Put(ctx, "US_STOCK:MSFT", []byte("b"), expiry))

		items, err := st.GetMany(ctx, []string{"US_STOCK:AAPL", "US_STOCK:MSFT", "US_STOCK:MISSING"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, []byte("a"), items["US_STOCK:AAPL"].Value)
		assert.NotContains(t, items, "US_STOCK:MISSING")
	})

	t.Run("get many includes expired items", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put(ctx, "k", []byte("v"), time.Now().Add(-time.Minute)))

		items, err := st.GetMany(ctx, []string{"k"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items["k"].Expired(time.Now()))
	})

	t.Run("scan by prefix honors the limit", func(t *testing.T) {
		st := NewMemoryStore()
		expiry := time.Now().Add(time.Hour)
		require.NoError(t, st.Put(ctx, "JP_STOCK:7203", []byte("a"), expiry))
		require.NoError(t, st.Put(ctx, "JP_STOCK:6758", []byte("b"), expiry))
		require.NoError(t, st.Put(ctx, "US_STOCK:AAPL", []byte("c"), expiry))

		items, err := st.ScanByPrefix(ctx, "JP_STOCK:", 10)
		require.NoError(t, err)
		assert.Len(t, items, 2)

		limited, err := st.ScanByPrefix(ctx, "JP_STOCK:", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("expired items remain visible to scans", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put(ctx, "k", []byte("v"), time.Now().Add(-time.Minute)))

		items, err := st.ScanByPrefix(ctx, "k", 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].Expired(time.Now()))
	})
}
