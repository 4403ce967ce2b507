package docstore

import (
	"context"
	"errors"
	"testing"
)

type countingStore struct {
	*LocalStore
	healthErr error
	closed    bool
}

func (c *countingStore) HealthCheck(ctx context.Context) error { return c.healthErr }
func (c *countingStore) Close() error                          { c.closed = true; return nil }

func withOpenStore(t *testing.T) *[]*countingStore {
	t.Helper()
	opened := &[]*countingStore{}
	prev := openStore
	openStore = func(StoreConfig) (Store, error) {
		s := &countingStore{LocalStore: NewMemoryStore()}
		*opened = append(*opened, s)
		return s, nil
	}
	t.Cleanup(func() {
		ClosePool()
		openStore = prev
	})
	return opened
}

func TestGetStoreReusesInstance(t *testing.T) {
	opened := withOpenStore(t)
	cfg := StoreConfig{UseLocal: true}

	a, err := GetStore(cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := GetStore(cfg)
	if a != b || len(*opened) != 1 {
		t.Fatalf("expected a single reused store, opened %d", len(*opened))
	}
	if GetPoolStats()["status"] != "connected" {
		t.Errorf("unexpected stats %+v", GetPoolStats())
	}
}

func TestGetStoreRecreatesOnConfigChange(t *testing.T) {
	opened := withOpenStore(t)

	GetStore(StoreConfig{UseLocal: true})
	GetStore(StoreConfig{UseLocal: true, DataDir: "elsewhere"})
	if len(*opened) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(*opened))
	}
	if !(*opened)[0].closed {
		t.Error("previous store should be closed")
	}
}

func TestGetStoreRecreatesWhenUnhealthy(t *testing.T) {
	opened := withOpenStore(t)
	cfg := StoreConfig{UseLocal: true}

	GetStore(cfg)
	(*opened)[0].healthErr = errors.New("gone")
	GetStore(cfg)
	if len(*opened) != 2 {
		t.Fatalf("expected unhealthy store to be replaced, got %d", len(*opened))
	}
}

func TestClosePoolResetsStats(t *testing.T) {
	withOpenStore(t)
	GetStore(StoreConfig{UseLocal: true})
	if err := ClosePool(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if GetPoolStats()["status"] != "no_connection" {
		t.Errorf("expected no_connection, got %+v", GetPoolStats())
	}
}
