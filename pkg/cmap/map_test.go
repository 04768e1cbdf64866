package cmap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMap_Basic(t *testing.T) {
	m := New[int]()

	if _, ok := m.Get("alice@lime.local/home"); ok {
		t.Fatal("Get() on empty map found a value")
	}

	m.Set("alice@lime.local/home", 1)
	m.Set("bob@lime.local/work", 2)
	m.Set("alice@lime.local/home", 3)

	if v, ok := m.Get("alice@lime.local/home"); !ok || v != 3 {
		t.Errorf("Get() = (%d, %v), want (3, true)", v, ok)
	}
	if n := m.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	m.Delete("bob@lime.local/work")
	m.Delete("missing")
	if n := m.Count(); n != 1 {
		t.Errorf("Count() after Delete = %d, want 1", n)
	}

	v, ok := m.Pop("alice@lime.local/home")
	if !ok || v != 3 {
		t.Errorf("Pop() = (%d, %v), want (3, true)", v, ok)
	}
	if _, ok := m.Pop("alice@lime.local/home"); ok {
		t.Error("second Pop() found a value")
	}
}

func TestMap_RangeAndKeys(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("node-%03d", i), i)
	}

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	if sum != 4950 {
		t.Errorf("Range() sum = %d, want 4950", sum)
	}

	visited := 0
	m.Range(func(string, int) bool {
		visited++
		return visited < 10
	})
	if visited != 10 {
		t.Errorf("Range() visited %d entries after stop, want 10", visited)
	}

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 100 || keys[0] != "node-000" || keys[99] != "node-099" {
		t.Errorf("Keys() = %d keys, first %q", len(keys), keys[0])
	}
}

func TestMap_GetOrCompute(t *testing.T) {
	m := New[string]()
	errCreate := errors.New("create failed")

	tests := []struct {
		name        string
		create      func() (string, error)
		want        string
		wantExisted bool
		wantErr     error
	}{
		{"error stores nothing", func() (string, error) { return "", errCreate }, "", false, errCreate},
		{"absent", func() (string, error) { return "first", nil }, "first", false, nil},
		{"present", func() (string, error) { return "second", nil }, "first", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, existed, err := m.GetOrCompute("k", tt.create)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if v != tt.want || existed != tt.wantExisted {
				t.Errorf("GetOrCompute() = (%q, %v), want (%q, %v)", v, existed, tt.want, tt.wantExisted)
			}
		})
	}
}

func TestMap_GetOrComputeOnce(t *testing.T) {
	m := New[*int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 32)

	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, _ := m.GetOrCompute("session", func() (*int, error) {
				calls.Add(1)
				return new(int), nil
			})
			results[i] = v
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("create called %d times, want 1", calls.Load())
	}
	for i, v := range results {
		if v != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestMap_RemoveIf(t *testing.T) {
	m := New[*int]()
	current, stale := new(int), new(int)
	m.Set("k", current)

	if _, ok := m.RemoveIf("k", func(v *int) bool { return v == stale }); ok {
		t.Error("RemoveIf() removed a value the predicate rejected")
	}
	if _, ok := m.RemoveIf("missing", func(*int) bool { return true }); ok {
		t.Error("RemoveIf() removed a missing key")
	}
	v, ok := m.RemoveIf("k", func(v *int) bool { return v == current })
	if !ok || v != current {
		t.Errorf("RemoveIf() = (%p, %v), want current", v, ok)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after RemoveIf", m.Count())
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				m.Set(key, i)
				if v, ok := m.Get(key); !ok || v != i {
					t.Errorf("Get(%s) = (%d, %v)", key, v, ok)
					return
				}
				if i%2 == 0 {
					m.Delete(key)
				}
			}
		}()
	}
	wg.Wait()

	if n := m.Count(); n != 8*100 {
		t.Errorf("Count() = %d, want %d", n, 8*100)
	}
}
