// Package classifier implements the weighted naive-Bayes process
// classifier, per spec.md 4.G: archive ingestion, per-feature update
// tables, perform_analysis, weight recomputation, and the fingerprint
// prevalence cache.
package classifier

import (
	"math"
	"sort"
)

func logf(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return math.Log(v)
}

// Features is the fixed set of six attributes a fingerprint record's
// feature_weights must declare exactly, per spec.md 4.G. A record naming
// any other set is skipped during ingestion.
var Features = []string{"asn", "port", "domain", "dst_ip", "sni", "ua"}

// OSInfo is one observed operating system and its occurrence count for a
// process, surfaced verbatim in the analysis output's os_info array.
type OSInfo struct {
	Name  string
	Count uint64
}

// process is one candidate process associated with a fingerprint record.
type process struct {
	name    string
	count   uint64
	malware bool
	osInfo  []OSInfo
	attrs   map[string]bool // attribute name -> whether this process exhibits it
}

// featureTable holds, for one of the six features, the observed value
// counts per process plus the number of distinct values seen — the
// denominator for Laplace-smoothed log-likelihoods.
type featureTable struct {
	counts       map[string][]uint64 // value -> per-process observed count
	distinctVals int
}

// unlabeledSentinel is the process name mercury's archive uses to mean
// "no specific process attributed," per spec.md 4.G step 5.
const unlabeledSentinel = "generic dmz process"

// fingerprintModel is the fully-derived, ready-to-score representation of
// one fingerprint_db record.
type fingerprintModel struct {
	strRepr string
	fpType  string

	processes []process

	// prior[i] is the base log-prior for processes[i]; basePriorShift is
	// the constant offset applied uniformly across all processes,
	// separated out so recompute_probabilities can adjust it without
	// rebuilding the whole record (spec.md 4.G: "shifts every
	// process_prior by base_prior·(Σnew − Σold)").
	prior          []float64
	basePriorShift float64

	// deltas[feature][value][i] is the already-weight-scaled score
	// contribution of observing `value` for `feature`, for processes[i].
	// unweighted[feature][value][i] is the same before the current
	// weight was applied, kept so recompute can rescale in place.
	deltas     map[string]map[string][]float64
	unweighted map[string]map[string][]float64

	weights map[string]float64
}

func (m *fingerprintModel) numProcesses() int { return len(m.processes) }

// laplaceAlpha smooths per-value log-likelihoods against processes that
// never observed a given feature value.
const laplaceAlpha = 1.0

// buildFeatureDeltas turns a raw value->per-process-count table into
// weighted score deltas: weight * log((count+alpha)/(processTotal+alpha*V)).
func buildFeatureDeltas(table featureTable, processTotals []uint64, weight float64) (weighted, unweighted map[string][]float64) {
	weighted = make(map[string][]float64, len(table.counts))
	unweighted = make(map[string][]float64, len(table.counts))
	v := float64(table.distinctVals)
	if v == 0 {
		v = 1
	}
	for value, counts := range table.counts {
		u := make([]float64, len(counts))
		w := make([]float64, len(counts))
		for i, c := range counts {
			total := float64(processTotals[i])
			ratio := (float64(c) + laplaceAlpha) / (total + laplaceAlpha*v)
			u[i] = logf(ratio)
			w[i] = weight * u[i]
		}
		unweighted[value] = u
		weighted[value] = w
	}
	return weighted, unweighted
}

// sortedFeatureNames returns a copy of Features in alphabetical order.
func sortedFeatureNames() []string {
	out := append([]string(nil), Features...)
	sort.Strings(out)
	return out
}
