// Package multikey provides a map keyed by a fixed-arity tuple of
// heterogeneous comparable values.
//
// Entries are stored in a trie of single-key maps, one level per tuple
// position. Callers index per-actuator state by (device, category, index)
// without building string keys:
//
//	statuses := multikey.New[string, device.Category, int, device.Status]()
//	statuses.Set(multikey.Of("dev-1", device.CategoryScalar, 0), device.ScalarStatus{})
//
// Every call supplies all three positions. Partial-key lookups are not
// supported.
//
// Thread Safety: Map is not safe for concurrent use. The playback scheduler
// only touches its maps from its own goroutine.
package multikey

import "iter"

// Key is a full three-position key.
type Key[K1, K2, K3 comparable] struct {
	First  K1
	Second K2
	Third  K3
}

// Of builds a Key from its three positions.
func Of[K1, K2, K3 comparable](first K1, second K2, third K3) Key[K1, K2, K3] {
	return Key[K1, K2, K3]{First: first, Second: second, Third: third}
}

// Store is the contract implemented by Map.
type Store[K any, V any] interface {
	Get(key K) (V, bool)
	Has(key K) bool
	Set(key K, value V)
	Delete(key K) bool
	Len() int
	All() iter.Seq2[K, V]
}

// Map is a trie of maps keyed by Key[K1, K2, K3].
//
// Intermediate levels are created on Set and pruned on Delete as soon as
// they become empty, so the trie never holds dead branches. The entry count
// is maintained incrementally.
type Map[K1, K2, K3 comparable, V any] struct {
	root map[K1]map[K2]map[K3]V
	size int
}

// New creates an empty Map.
func New[K1, K2, K3 comparable, V any]() *Map[K1, K2, K3, V] {
	return &Map[K1, K2, K3, V]{
		root: make(map[K1]map[K2]map[K3]V),
	}
}

// Get returns the value stored under key.
func (m *Map[K1, K2, K3, V]) Get(key Key[K1, K2, K3]) (V, bool) {
	var zero V
	second, ok := m.root[key.First]
	if !ok {
		return zero, false
	}
	third, ok := second[key.Second]
	if !ok {
		return zero, false
	}
	v, ok := third[key.Third]
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K1, K2, K3, V]) Has(key Key[K1, K2, K3]) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key, creating intermediate levels as needed.
// Overwriting an existing key does not change Len.
func (m *Map[K1, K2, K3, V]) Set(key Key[K1, K2, K3], value V) {
	if m.root == nil {
		m.root = make(map[K1]map[K2]map[K3]V)
	}

	second, ok := m.root[key.First]
	if !ok {
		second = make(map[K2]map[K3]V)
		m.root[key.First] = second
	}
	third, ok := second[key.Second]
	if !ok {
		third = make(map[K3]V)
		second[key.Second] = third
	}

	if _, exists := third[key.Third]; !exists {
		m.size++
	}
	third[key.Third] = value
}

// Delete removes key and prunes every level left empty by the removal,
// walking back toward the root and stopping at the first non-empty level.
// It reports whether the key was present.
func (m *Map[K1, K2, K3, V]) Delete(key Key[K1, K2, K3]) bool {
	second, ok := m.root[key.First]
	if !ok {
		return false
	}
	third, ok := second[key.Second]
	if !ok {
		return false
	}
	if _, ok := third[key.Third]; !ok {
		return false
	}

	delete(third, key.Third)
	m.size--

	if len(third) > 0 {
		return true
	}
	delete(second, key.Second)
	if len(second) > 0 {
		return true
	}
	delete(m.root, key.First)
	return true
}

// Len returns the number of stored entries.
func (m *Map[K1, K2, K3, V]) Len() int {
	return m.size
}

// All returns a single-pass sequence over every entry. Order is unspecified.
// The map must not be modified while the sequence is being consumed.
func (m *Map[K1, K2, K3, V]) All() iter.Seq2[Key[K1, K2, K3], V] {
	return func(yield func(Key[K1, K2, K3], V) bool) {
		for k1, second := range m.root {
			for k2, third := range second {
				for k3, v := range third {
					if !yield(Of(k1, k2, k3), v) {
						return
					}
				}
			}
		}
	}
}
