package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/pkg/dfg"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options{MaxEntries: 3})

	c.Set("a", []byte("value_a"))
	c.Set("b", []byte("value_b"))
	c.Set("c", []byte("value_c"))

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, []byte("value_a"), val)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxEntries: 3, OnEvict: func(k string) { evicted = append(evicted, k) }})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))

	// a becomes most recently used, b is now the oldest
	c.Get("a")
	c.Set("d", []byte("4"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	for _, k := range []string{"a", "c", "d"} {
		_, found := c.Get(k)
		assert.True(t, found, k)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRU_MaxBytes(t *testing.T) {
	c := New(Options{MaxBytes: 25})

	c.Set("a", []byte("1234567890"))
	c.Set("b", []byte("1234567890"))
	c.Set("c", []byte("1234567890"))

	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.Stats().Bytes, int64(25))
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	c := New(Options{MaxEntries: 10})

	c.Set("a", []byte("v1"))
	c.Set("a", []byte("value2"))
	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, []byte("value2"), val)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(len("a")+len("value2")), c.Stats().Bytes)

	c.Delete("a")
	c.Delete("a")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Bytes)

	c.Set("x", []byte("1"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, 0.0, c.Stats().HitRate())

	c.Set("a", []byte("1"))
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0.5, s.HitRate())
}

func TestLRU_SaveLoadKeepsRecency(t *testing.T) {
	c := New(Options{MaxEntries: 10})
	c.Set("old", []byte("1"))
	c.Set("mid", []byte("2"))
	c.Set("new", []byte("3"))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options{MaxEntries: 2})
	require.NoError(t, c2.Load(&buf))

	// the bound applies on load and drops the least recent entry
	assert.Equal(t, 2, c2.Len())
	_, found := c2.Get("old")
	assert.False(t, found)
	val, found := c2.Get("new")
	require.True(t, found)
	assert.Equal(t, []byte("3"), val)
}

func TestLRU_LoadRejectsGarbage(t *testing.T) {
	c := New(Options{})
	c.Set("keep", []byte("1"))
	err := c.Load(bytes.NewReader([]byte{0xc1}))
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func sampleSummary() *dfg.PortableSummary {
	return &dfg.PortableSummary{
		Function: "copy(int*, int*)",
		Params: []dfg.ParamEffect{
			{Index: 0, Name: "dst", MayWrite: true, Aliases: []int{1}},
			{Index: 1, Name: "src", FlowsToReturn: true},
		},
		ReturnsExternal: true,
	}
}

func TestSummaryCache_GetPut(t *testing.T) {
	c := NewSummaryCache(Options{})

	_, err := c.Get("copy#1")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	want := sampleSummary()
	require.NoError(t, c.Put("copy#1", want))
	got, err := c.Get("copy#1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, c.Len())

	assert.Error(t, c.Put("nil", nil))
}

func TestSummaryCache_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfq", "summaries.msgpack")

	c, err := OpenSummaryCache(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, path, c.Path())

	// nothing to write yet
	require.NoError(t, c.Flush())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, c.Put("copy#1", sampleSummary()))
	require.NoError(t, c.Flush())

	c2, err := OpenSummaryCache(path, Options{})
	require.NoError(t, err)
	got, err := c2.Get("copy#1")
	require.NoError(t, err)
	assert.Equal(t, sampleSummary(), got)
}

func TestSummaryCache_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.msgpack")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack"), 0o644))

	c, err := OpenSummaryCache(path, Options{})
	require.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Put("k", sampleSummary()))
	require.NoError(t, c.Flush())
	c2, err := OpenSummaryCache(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, c2.Len())
}
