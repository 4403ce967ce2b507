package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSupabaseStoreCreateSendsRow(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/documents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "service-key" {
			t.Errorf("missing apikey header")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "service-key")
	id, err := s.Create(context.Background(), "users/u1/tabs", Fields{"label": "Work", "createdAt": "nope"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got["id"] != id || got["path"] != "users/u1/tabs/"+id || got["collection"] != "users/u1/tabs" {
		t.Errorf("unexpected row: %+v", got)
	}
	fields := got["fields"].(map[string]interface{})
	if fields["label"] != "Work" {
		t.Errorf("expected label in fields, got %+v", fields)
	}
	if _, ok := fields["createdAt"]; ok {
		t.Error("reserved createdAt must not be sent")
	}
}

func TestSupabaseStoreQuerySortsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("collection") != "eq.users/u1/tabs" {
			t.Errorf("unexpected filter %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"path":"users/u1/tabs/b","collection":"users/u1/tabs","id":"b","fields":{"order":1},"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"},
			{"path":"users/u1/tabs/a","collection":"users/u1/tabs","id":"a","fields":{"order":0},"created_at":"2024-01-02T00:00:00Z","updated_at":"2024-01-02T00:00:00Z"}
		]`))
	}))
	defer srv.Close()

	docs, err := NewSupabaseStore(srv.URL, "k").Query(context.Background(), "users/u1/tabs", "order")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("expected [a b], got %+v", docs)
	}
}

func TestSupabaseStoreGetMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	_, err := NewSupabaseStore(srv.URL, "k").Get(context.Background(), "users/u1/tabs/x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupabaseStoreBatchUsesRPC(t *testing.T) {
	var payload struct {
		Ops []Op `json:"ops"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/apply_document_batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewSupabaseStore(srv.URL, "k").Batch(context.Background(), []Op{
		DeleteOp("users/u1/tabs/t1/widgets/w1"),
		DeleteOp("users/u1/tabs/t1"),
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(payload.Ops) != 2 || payload.Ops[1].Kind != OpDelete || payload.Ops[1].Path != "users/u1/tabs/t1" {
		t.Errorf("unexpected payload %+v", payload.Ops)
	}
}

func TestSupabaseStoreMapsNotFoundCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"P0002","message":"document not found: users/u1/tabs/x"}`))
	}))
	defer srv.Close()

	err := NewSupabaseStore(srv.URL, "k").Update(context.Background(), "users/u1/tabs/x", Fields{"label": "y"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupabaseStoreSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	err := NewSupabaseStore(srv.URL, "k").Delete(context.Background(), "users/u1/tabs/x")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected generic error, got %v", err)
	}
}

func TestSupabaseStoreCreateAtMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var row map[string]interface{}
		json.NewDecoder(r.Body).Decode(&row)
		if row["id"] != "sid-1" || row["path"] != "revoked_sessions/sid-1" {
			t.Errorf("unexpected row: %+v", row)
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	}))
	defer srv.Close()

	err := NewSupabaseStore(srv.URL, "k").CreateAt(context.Background(), "revoked_sessions/sid-1", Fields{})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}
