package server

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/dotside-studios/cgm-agent/protocol"
)

func noopHandler(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	return nil
}

func TestHandlerRegistry_Handle(t *testing.T) {
	registry := NewHandlerRegistry()

	t.Run("register valid handler", func(t *testing.T) {
		if err := registry.Handle(protocol.WSTypeScan, noopHandler); err != nil {
			t.Fatalf("failed to register handler: %v", err)
		}
	})

	t.Run("register nil handler", func(t *testing.T) {
		if err := registry.Handle("nil", nil); err == nil {
			t.Fatal("expected error when registering nil handler")
		}
	})

	t.Run("register handler with empty message type", func(t *testing.T) {
		if err := registry.Handle("", noopHandler); err == nil {
			t.Fatal("expected error when registering handler with empty message type")
		}
	})

	t.Run("register duplicate handler", func(t *testing.T) {
		if err := registry.Handle(protocol.WSTypeScan, noopHandler); err == nil {
			t.Fatal("expected error when registering duplicate handler")
		}
	})
}

func TestHandlerRegistry_GetAndHas(t *testing.T) {
	registry := NewHandlerRegistry()
	wantErr := errors.New("scan failed")
	registry.Handle(protocol.WSTypeScan, func(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
		return wantErr
	})

	h, ok := registry.Get(protocol.WSTypeScan)
	if !ok || !registry.Has(protocol.WSTypeScan) {
		t.Fatal("handler not found")
	}
	if err := h(context.Background(), nil, protocol.WebSocketRequest{}); err != wantErr {
		t.Fatalf("expected error %v, got %v", wantErr, err)
	}

	if _, ok := registry.Get(protocol.WSTypePoll); ok {
		t.Fatal("expected handler not to be found")
	}
	if registry.Has(protocol.WSTypePoll) {
		t.Fatal("expected handler not to exist")
	}
}

func TestHandlerRegistry_MessageTypesSorted(t *testing.T) {
	registry := NewHandlerRegistry()
	if types := registry.MessageTypes(); len(types) != 0 {
		t.Fatalf("expected 0 message types, got %d", len(types))
	}

	for _, typ := range []string{protocol.WSTypeStatus, protocol.WSTypeConnect, protocol.WSTypeScan} {
		registry.Handle(typ, noopHandler)
	}

	want := []string{"connect", "scan", "status"}
	if got := registry.MessageTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestHandlerRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewHandlerRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Handle(fmt.Sprintf("type-%d", i), noopHandler)
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("type-%d", i))
			registry.MessageTypes()
		}(i)
	}
	wg.Wait()

	if n := len(registry.MessageTypes()); n != 50 {
		t.Fatalf("expected 50 message types, got %d", n)
	}
}

func TestHandlerRegistry_StartLifecycleHandlers(t *testing.T) {
	registry := NewHandlerRegistry()

	// Should not panic
	registry.StartLifecycleHandlers(context.Background())

	var (
		mu    sync.Mutex
		count int
		got   []context.Context
	)
	for i := 0; i < 3; i++ {
		registry.RegisterLifecycle(func(ctx context.Context) {
			mu.Lock()
			defer mu.Unlock()
			count++
			got = append(got, ctx)
		})
	}

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "lifecycle")
	registry.StartLifecycleHandlers(ctx)

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Fatalf("expected 3 lifecycle starters to be called, got %d", count)
	}
	for _, c := range got {
		if c.Value(key{}) != "lifecycle" {
			t.Fatal("lifecycle function did not receive the server context")
		}
	}
}
