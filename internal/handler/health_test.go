package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealth_AlwaysOK(t *testing.T) {
	handler := Health()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestHealthDB_AllComponentsOK(t *testing.T) {
	handler := HealthDB(map[string]ComponentPinger{
		"postgres": &stubPinger{},
		"neo4j":    &stubPinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status     string                      `json:"status"`
		Components map[string]componentStatus `json:"components"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Errorf("components = %v, want 2 entries", resp.Components)
	}
}

func TestHealthDB_OneComponentDown(t *testing.T) {
	handler := HealthDB(map[string]ComponentPinger{
		"postgres": &stubPinger{},
		"neo4j":    &stubPinger{err: fmt.Errorf("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Status     string                      `json:"status"`
		Components map[string]componentStatus `json:"components"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["neo4j"].Status != "error" {
		t.Errorf("neo4j status = %q, want error", resp.Components["neo4j"].Status)
	}
	if resp.Components["postgres"].Status != "ok" {
		t.Errorf("postgres status = %q, want ok", resp.Components["postgres"].Status)
	}
}

func TestHealthDB_NoComponentsConfigured(t *testing.T) {
	handler := HealthDB(nil)

	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
