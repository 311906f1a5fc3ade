package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
)

func TestRequestFor(t *testing.T) {
	tests := []struct {
		name       string
		entry      model.SyncEntry
		wantMethod string
		wantPath   string
		wantBody   bool
		wantErr    bool
	}{
		{"insert", model.SyncEntry{Operation: model.OpInsert, TableName: "clients", Payload: `{"name":"Ana"}`}, http.MethodPost, "/clients", true, false},
		{"update", model.SyncEntry{Operation: model.OpUpdate, TableName: "products", RecordKey: "7", Payload: `{"id":7}`}, http.MethodPut, "/products/7", true, false},
		{"delete", model.SyncEntry{Operation: model.OpDelete, TableName: "products", RecordKey: "7", Payload: `{"id":7}`}, http.MethodDelete, "/products/7", false, false},
		{"update without key", model.SyncEntry{Operation: model.OpUpdate, TableName: "products", Payload: `{}`}, "", "", false, true},
		{"unknown op", model.SyncEntry{Operation: "upsert", TableName: "products", Payload: `{}`}, "", "", false, true},
		{"bad payload", model.SyncEntry{Operation: model.OpInsert, TableName: "products", Payload: `{not json`}, "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := RequestFor(&tt.entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Method != tt.wantMethod || req.Path != tt.wantPath {
				t.Errorf("got %s %s, want %s %s", req.Method, req.Path, tt.wantMethod, tt.wantPath)
			}
			if (len(req.Body) > 0) != tt.wantBody {
				t.Errorf("body = %q", req.Body)
			}
		})
	}
}

func TestHTTPDispatcherSend(t *testing.T) {
	var gotKey, gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch r.URL.Path {
		case "/api/products/1":
			w.WriteHeader(http.StatusOK)
		case "/api/products/2":
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL+"/api/", srv.Client(), logger.NewNop())
	ctx := context.Background()

	res, err := d.Send(ctx, Request{Method: http.MethodPut, Path: "/products/1", Body: []byte(`{"id":1}`), IdempotencyKey: "k-1"})
	if err != nil || !res.Success || res.Category != CategorySuccess {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if gotKey != "k-1" || gotBody != `{"id":1}` || gotPath != "/api/products/1" {
		t.Errorf("server saw key=%q body=%q path=%q", gotKey, gotBody, gotPath)
	}

	res, err = d.Send(ctx, Request{Method: http.MethodPut, Path: "/products/2", Body: []byte(`{}`)})
	if err != nil || res.Success || res.Category != CategoryClientError || res.StatusCode != http.StatusConflict {
		t.Errorf("conflict res = %+v, err = %v", res, err)
	}

	res, err = d.Send(ctx, Request{Method: http.MethodDelete, Path: "/other/3"})
	if err != nil || res.Success || res.Category != CategoryServerError {
		t.Errorf("5xx res = %+v, err = %v", res, err)
	}
}

func TestHTTPDispatcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, srv.Client(), logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := d.Send(ctx, Request{Method: http.MethodPost, Path: "/products", Body: []byte(`{}`)})
	if err == nil || res.Success || res.Category != CategoryTimeout {
		t.Errorf("res = %+v, err = %v", res, err)
	}
}

func TestPingerCachesAnswer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/ping" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	p := NewPinger(srv.URL+"/api", "ping", time.Minute, srv.Client())
	ctx := context.Background()

	if !p.IsOnline(ctx) || !p.IsOnline(ctx) {
		t.Fatal("expected online")
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 (cached)", hits.Load())
	}

	srv.Close()
	if !p.IsOnline(ctx) {
		t.Error("cached answer should still be online")
	}
	p.Invalidate()
	if p.IsOnline(ctx) {
		t.Error("expected offline after server shutdown")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(false)
	if s.IsOnline(context.Background()) {
		t.Error("expected offline")
	}
	s.Set(true)
	if !s.IsOnline(context.Background()) {
		t.Error("expected online")
	}
}
