package maps

// mapImplementation controls the default concurrent map used across the
// application. Valid options: "xsync", "sync".
const mapImplementation = "xsync"

// Integer is a constraint that permits any integer type.
// All integer types are comparable.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap defines a generic, thread-safe map interface for integer
// keys. The abstraction allows swapping the underlying implementation
// without touching the consumers (thread registry, per-thread counters).
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadOrStore(key K, valueFactory func() V) (V, bool)
	Range(f func(key K, value V) bool)
}

// NewConcurrentMap is a factory that returns the default concurrent map
// implementation for integer-keyed maps.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	switch mapImplementation {
	case "sync":
		return NewStdSyncMap[K, V]()
	default:
		return NewXSyncMap[K, V]()
	}
}
