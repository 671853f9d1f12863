package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/andrewchi/mercury/internal/ring"
)

func TestHealthz(t *testing.T) {
	h := &Handler{Model: classifier.NewHolder(nil)}
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatsReportsEveryRing(t *testing.T) {
	rg := ring.New(4, ring.NonBlocking)
	h := &Handler{
		Model: classifier.NewHolder(nil),
		Rings: []WorkerRing{{Name: "worker-0", Ring: rg}},
	}
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats []ringStat
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "worker-0" || stats[0].Depth != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestFingerprintUnavailableWithoutModel(t *testing.T) {
	h := &Handler{Model: classifier.NewHolder(nil)}
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/fingerprints/deadbeef", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no classifier is loaded, got %d", rec.Code)
	}
}

func TestReloadFailsOnBadArchivePath(t *testing.T) {
	h := &Handler{Model: classifier.NewHolder(nil), ArchivePath: "/nonexistent/path"}
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/classifier/reload", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on a bad archive path, got %d", rec.Code)
	}
}

func TestWeightsRejectsMalformedBody(t *testing.T) {
	h := &Handler{Model: classifier.NewHolder(nil)}
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/classifier/weights", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on malformed body, got %d", rec.Code)
	}
}
