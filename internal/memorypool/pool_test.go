package memorypool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsOldestPastCapacity(t *testing.T) {
	p := New(Options{KVCapacity: 3})

	p.KV.Set("a", []byte("1"))
	p.KV.Set("b", []byte("2"))
	p.KV.Set("c", []byte("3"))
	p.KV.Set("d", []byte("4")) // evicts "a"
	p.KV.Set("e", []byte("5")) // evicts "b"

	_, ok := p.KV.Get("a")
	require.False(t, ok)
	_, ok = p.KV.Get("b")
	require.False(t, ok)
	_, ok = p.KV.Get("c")
	require.True(t, ok)
	_, ok = p.KV.Get("d")
	require.True(t, ok)
	_, ok = p.KV.Get("e")
	require.True(t, ok)
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	p := New(Options{KVCapacity: 2})
	p.KV.Set("a", []byte("1"))
	p.KV.Set("b", []byte("2"))

	_, _ = p.KV.Get("a") // a is now more-recent than b

	p.KV.Set("c", []byte("3")) // should evict "b", not "a"

	_, ok := p.KV.Get("a")
	require.True(t, ok)
	_, ok = p.KV.Get("b")
	require.False(t, ok)
}

func TestLRU_TTLExpiryRemovesEntry(t *testing.T) {
	p := New(Options{KVCapacity: 10, TTL: 10 * time.Millisecond})
	p.KV.Set("a", []byte("1"))

	time.Sleep(30 * time.Millisecond)

	_, ok := p.KV.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, p.KV.Len())
}

func TestScope_PrefixesKeys(t *testing.T) {
	p := New(Options{KVCapacity: 10})
	runA := p.Scoped("run-a")
	runB := p.Scoped("run-b")

	runA.SetKV("x", []byte("from-a"))
	runB.SetKV("x", []byte("from-b"))

	v, ok := runA.GetKV("x")
	require.True(t, ok)
	require.Equal(t, []byte("from-a"), v)

	v, ok = runB.GetKV("x")
	require.True(t, ok)
	require.Equal(t, []byte("from-b"), v)
}

func TestLRU_CapacityPlusKDistinctWrites(t *testing.T) {
	const capacity = 5
	const extra = 2
	p := New(Options{KVCapacity: capacity})

	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6"}
	for _, k := range keys {
		p.KV.Set(k, []byte(k))
	}

	for i := 0; i < extra; i++ {
		_, ok := p.KV.Get(keys[i])
		require.False(t, ok, "expected %s to be evicted", keys[i])
	}
	for i := extra; i < len(keys); i++ {
		_, ok := p.KV.Get(keys[i])
		require.True(t, ok, "expected %s to remain", keys[i])
	}
}
