package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/storage"
)

func TestStore_GetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	r, _ := storage.NewResource(domain.NewPlainText("v1"))
	if err := store.Set(ctx, "u1", "/a", r); err != nil {
		t.Fatal(err)
	}
	r.Type = "mutated/after-set"

	got, err := store.Get(ctx, "u1", "/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != domain.MediaTypeTextPlain {
		t.Fatalf("Type = %q, want %q", got.Type, domain.MediaTypeTextPlain)
	}
	got.Type = "mutated/after-get"

	again, _ := store.Get(ctx, "u1", "/a")
	if again.Type != domain.MediaTypeTextPlain {
		t.Fatalf("stored resource was mutated through Get result")
	}
}

func TestStore_Concurrent(t *testing.T) {
	store := New()
	ctx := context.Background()
	r, _ := storage.NewResource(domain.NewPlainText("x"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := "u" + string(rune('a'+i%5))
			_ = store.Set(ctx, owner, "/r", r)
			_, _ = store.Get(ctx, owner, "/r")
		}(i)
	}
	wg.Wait()

	if n := store.Count(); n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
}

func TestStore_Closed(t *testing.T) {
	store := New()
	_ = store.Close()

	ctx := context.Background()
	if _, err := store.Get(ctx, "u", "/a"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Get: err = %v, want ErrClosed", err)
	}
	if err := store.Set(ctx, "u", "/a", &storage.Resource{}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Set: err = %v, want ErrClosed", err)
	}
	if _, err := store.List(ctx, "u", ""); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("List: err = %v, want ErrClosed", err)
	}
}
