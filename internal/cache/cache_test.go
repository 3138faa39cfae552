package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetLoadsOnceWithinTTL(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	var loads int32
	loader := func(ctx context.Context, key string) (interface{}, bool, error) {
		atomic.AddInt32(&loads, 1)
		return "value-" + key, true, nil
	}

	for i := 0; i < 3; i++ {
		val, ok, err := c.Get(context.Background(), "acme", loader)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok || val != "value-acme" {
			t.Fatalf("unexpected result: %v %v", val, ok)
		}
	}
	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}
}

func TestExpiredEntryReloads(t *testing.T) {
	c := New(Options{TTL: time.Millisecond}, MetricsHooks{})
	var loads int32
	loader := func(ctx context.Context, key string) (interface{}, bool, error) {
		return atomic.AddInt32(&loads, 1), true, nil
	}

	if _, _, err := c.Get(context.Background(), "k", loader); err != nil {
		t.Fatalf("first get: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	val, _, err := c.Get(context.Background(), "k", loader)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if val != int32(2) {
		t.Fatalf("expected reload, got %v", val)
	}
}

func TestNegativeCaching(t *testing.T) {
	c := New(Options{TTL: time.Minute, NegativeTTL: time.Minute}, MetricsHooks{})
	sentinel := errors.New("not found")
	var loads int32
	loader := func(ctx context.Context, key string) (interface{}, bool, error) {
		atomic.AddInt32(&loads, 1)
		return nil, false, sentinel
	}

	for i := 0; i < 2; i++ {
		_, ok, err := c.Get(context.Background(), "missing", loader)
		if ok {
			t.Fatal("expected miss")
		}
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}
	}
	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Fatalf("expected negative result cached after 1 load, got %d loads", got)
	}
}

func TestMaxEntriesEviction(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 3}, MetricsHooks{})
	loader := func(ctx context.Context, key string) (interface{}, bool, error) {
		return key, true, nil
	}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("tenant-%d", i)
		if _, _, err := c.Get(context.Background(), key, loader); err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
	}
	if c.Len() > 3 {
		t.Fatalf("expected at most 3 entries, got %d", c.Len())
	}
}
