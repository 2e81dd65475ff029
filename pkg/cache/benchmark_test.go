package cache

import (
	"fmt"
	"testing"
)

func BenchmarkLRUGet(b *testing.B) {
	c := New(Options{MaxEntries: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key%d", i), make([]byte, 100))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key999")
	}
}

func BenchmarkSummaryPut(b *testing.B) {
	c := NewSummaryCache(Options{MaxEntries: 10000})
	s := sampleSummary()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Put(fmt.Sprintf("key%d", i), s)
	}
}
