// Package api exposes a small gorilla/mux admin/query HTTP surface over
// a classifier Holder and a set of worker rings, the same mux.NewRouter()-plus-handler-struct
// idiom as the teacher's cmd/ns-api, generalized from flow queries to
// classifier/ring introspection, per SPEC_FULL.md 3.6.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/andrewchi/mercury/internal/ring"

	"github.com/gorilla/mux"
)

// WorkerRing names one worker's output ring for the /stats endpoint.
type WorkerRing struct {
	Name string
	Ring *ring.Ring
}

// Handler holds the dependencies every route needs: the classifier
// holder shared with every worker (internal/worker.Worker also reads
// from it), and the set of worker output rings to report on.
type Handler struct {
	Model *classifier.Holder
	Rings []WorkerRing

	// ArchivePath is re-read by /classifier/reload.
	ArchivePath string
}

// NewRouter builds the mux.Router serving every route this package
// defines.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/fingerprints/{fp}", h.fingerprint).Methods(http.MethodGet)
	r.HandleFunc("/classifier/reload", h.reload).Methods(http.MethodPost)
	r.HandleFunc("/classifier/weights", h.weights).Methods(http.MethodPost)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type ringStat struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
	Used  int    `json:"used"`
	Drops uint64 `json:"drops"`
}

// stats reports per-worker ring depth/used-count and drop counters,
// per SPEC_FULL.md 3.6.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	out := make([]ringStat, 0, len(h.Rings))
	for _, wr := range h.Rings {
		out = append(out, ringStat{
			Name:  wr.Name,
			Depth: wr.Ring.Depth(),
			Used:  wr.Ring.Used(),
			Drops: wr.Ring.Drops(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// fingerprint looks up a fingerprint string in the loaded classifier DB
// and returns its process table, a debugging aid per SPEC_FULL.md 3.6.
func (h *Handler) fingerprint(w http.ResponseWriter, r *http.Request) {
	fp := mux.Vars(r)["fp"]
	mdl := h.Model.Load()
	if mdl == nil {
		http.Error(w, "classifier not loaded", http.StatusServiceUnavailable)
		return
	}
	info, ok := mdl.Lookup(fp)
	if !ok {
		http.Error(w, fmt.Sprintf("fingerprint %q not found", fp), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// reload re-reads the resource archive from disk and publishes the
// freshly built Model to every worker sharing this holder.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	mdl, err := classifier.LoadArchive(h.ArchivePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}
	h.Model.Store(mdl)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// weights calls recompute_probabilities with a new 6-element feature
// weight vector, the HTTP equivalent of the "training tools" spec.md
// 4.G names as that operation's only caller.
func (h *Handler) weights(w http.ResponseWriter, r *http.Request) {
	var req map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	mdl := h.Model.Load()
	if mdl == nil {
		http.Error(w, "classifier not loaded", http.StatusServiceUnavailable)
		return
	}
	mdl.RecomputeProbabilities(req)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recomputed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
