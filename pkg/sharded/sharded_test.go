package sharded

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestMapBasicOperations(t *testing.T) {
	m := NewMap()

	m.Store("a", 1)
	m.Store("b", 2)

	if v, ok := m.Load("a"); !ok || v.(int) != 1 {
		t.Errorf("Load(a) = %v, %v", v, ok)
	}
	if !m.Has("b") || m.Has("missing") {
		t.Error("Has misbehaves")
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d", m.Count())
	}

	m.Delete("a")
	if m.Has("a") {
		t.Error("Delete did not remove the key")
	}

	items := m.Items()
	if len(items) != 1 || items["b"].(int) != 2 {
		t.Errorf("Items = %v", items)
	}
}

func TestMapConcurrentWriters(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		w := w
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Store(fmt.Sprintf("w%d-%d", w, i), i)
			}
		}()
	}
	wg.Wait()

	if m.Count() != 8*200 {
		t.Errorf("Count = %d, want %d", m.Count(), 8*200)
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet()

	if loaded := s.LoadOrStore("x"); loaded {
		t.Error("first LoadOrStore must report not loaded")
	}
	if loaded := s.LoadOrStore("x"); !loaded {
		t.Error("second LoadOrStore must report loaded")
	}
	s.Store("y")
	s.Store("z")
	s.Delete("z")

	keys := s.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Errorf("Keys = %v", keys)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d", s.Count())
	}
}
