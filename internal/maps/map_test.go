package maps

import (
	"sync"
	"sync/atomic"
	"testing"
)

func implementations() map[string]func() ConcurrentMap[uint32, int] {
	return map[string]func() ConcurrentMap[uint32, int]{
		"xsync": NewXSyncMap[uint32, int],
		"sync":  NewStdSyncMap[uint32, int],
	}
}

func TestConcurrentMapBasics(t *testing.T) {
	for name, newMap := range implementations() {
		t.Run(name, func(t *testing.T) {
			m := newMap()

			if _, ok := m.Load(1); ok {
				t.Fatalf("Load on empty map reported a value")
			}

			m.Store(1, 10)
			if v, ok := m.Load(1); !ok || v != 10 {
				t.Fatalf("Load(1) = %d, %v, want 10, true", v, ok)
			}

			if v, loaded := m.LoadOrStore(1, func() int { return 99 }); !loaded || v != 10 {
				t.Errorf("LoadOrStore on existing key = %d, %v, want 10, true", v, loaded)
			}
			if v, loaded := m.LoadOrStore(2, func() int { return 20 }); loaded || v != 20 {
				t.Errorf("LoadOrStore on new key = %d, %v, want 20, false", v, loaded)
			}

			m.Delete(1)
			if _, ok := m.Load(1); ok {
				t.Errorf("Load after Delete reported a value")
			}

			seen := 0
			m.Range(func(k uint32, v int) bool {
				seen++
				return true
			})
			if seen != 1 {
				t.Errorf("Range visited %d entries, want 1", seen)
			}
		})
	}
}

func TestConcurrentMapParallelCounters(t *testing.T) {
	const (
		goroutines = 8
		increments = 1000
	)

	m := NewConcurrentMap[uint32, *atomic.Int64]()
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				counter, _ := m.LoadOrStore(7, func() *atomic.Int64 {
					return new(atomic.Int64)
				})
				counter.Add(1)
			}
		}()
	}
	wg.Wait()

	counter, ok := m.Load(7)
	if !ok {
		t.Fatalf("counter missing after parallel increments")
	}
	if got := counter.Load(); got != goroutines*increments {
		t.Errorf("counter = %d, want %d", got, goroutines*increments)
	}
}

func BenchmarkMapLoad(b *testing.B) {
	for name, newMap := range implementations() {
		b.Run(name, func(b *testing.B) {
			m := newMap()
			for i := uint32(0); i < 1024; i++ {
				m.Store(i, int(i))
			}
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := uint32(0)
				for pb.Next() {
					m.Load(i % 1024)
					i++
				}
			})
		})
	}
}
