// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"sync"

	"hud-backend/pkg/docstore"
)

// FaultStore wraps an in-memory store, counts writes and injects errors.
// A non-nil *Err field makes the matching method fail before touching data.
type FaultStore struct {
	*docstore.LocalStore

	mu sync.Mutex

	QueryErr    error
	CreateErr   error
	CreateAtErr error
	GetErr      error
	UpdateErr   error
	DeleteErr   error
	BatchErr    error

	Queries   int
	Gets      int
	Creates   int
	Updates   int
	Deletes   int
	Batches   int
	LastBatch []docstore.Op
}

// NewFaultStore returns a FaultStore over a fresh in-memory store.
func NewFaultStore() *FaultStore {
	return &FaultStore{LocalStore: docstore.NewMemoryStore()}
}

// Writes is the number of write calls that reached the store, failed or not.
func (f *FaultStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Creates + f.Updates + f.Deletes + f.Batches
}

// Query implements docstore.Store.
func (f *FaultStore) Query(ctx context.Context, collection, sortField string) ([]docstore.Document, error) {
	f.mu.Lock()
	f.Queries++
	err := f.QueryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.LocalStore.Query(ctx, collection, sortField)
}

// Create implements docstore.Store.
func (f *FaultStore) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	f.mu.Lock()
	f.Creates++
	err := f.CreateErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.LocalStore.Create(ctx, collection, fields)
}

// CreateAt implements docstore.Store. It counts as a create.
func (f *FaultStore) CreateAt(ctx context.Context, path string, fields docstore.Fields) error {
	f.mu.Lock()
	f.Creates++
	err := f.CreateAtErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LocalStore.CreateAt(ctx, path, fields)
}

// Get implements docstore.Store.
func (f *FaultStore) Get(ctx context.Context, path string) (docstore.Document, error) {
	f.mu.Lock()
	f.Gets++
	err := f.GetErr
	f.mu.Unlock()
	if err != nil {
		return docstore.Document{}, err
	}
	return f.LocalStore.Get(ctx, path)
}

// Update implements docstore.Store.
func (f *FaultStore) Update(ctx context.Context, path string, fields docstore.Fields) error {
	f.mu.Lock()
	f.Updates++
	err := f.UpdateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LocalStore.Update(ctx, path, fields)
}

// Delete implements docstore.Store.
func (f *FaultStore) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	f.Deletes++
	err := f.DeleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LocalStore.Delete(ctx, path)
}

// Batch implements docstore.Store.
func (f *FaultStore) Batch(ctx context.Context, ops []docstore.Op) error {
	f.mu.Lock()
	f.Batches++
	f.LastBatch = append([]docstore.Op(nil), ops...)
	err := f.BatchErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LocalStore.Batch(ctx, ops)
}

// Fail sets the same error on every method; nil clears all of them.
func (f *FaultStore) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QueryErr, f.CreateErr, f.CreateAtErr, f.GetErr = err, err, err, err
	f.UpdateErr, f.DeleteErr, f.BatchErr = err, err, err
}

// ResetCounts zeroes the read and write counters.
func (f *FaultStore) ResetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries, f.Gets = 0, 0
	f.Creates, f.Updates, f.Deletes, f.Batches = 0, 0, 0, 0
	f.LastBatch = nil
}
