package classifier

import (
	"math"
	"testing"
)

func buildTestModel() *Model {
	return buildTestModelWithWeights(map[string]float64{
		"asn": 1, "port": 1, "domain": 1, "dst_ip": 1, "sni": 1, "ua": 1,
	})
}

// buildTestModelWithWeights builds the two-process test model with the
// given feature weights applied at build time.
func buildTestModelWithWeights(weights map[string]float64) *Model {
	raw := rawFingerprintRecord{
		StrRepr:        "tls/1/(0303)((1301))()",
		FPType:         "tls",
		TotalCount:     300,
		FeatureWeights: weights,
		ProcessInfo: []rawProcessInfo{
			{
				Process: "chrome.exe", Count: 200,
				ClassesSNI: map[string]uint64{"www.example.com": 180},
				ClassesPort: map[string]uint64{"443": 200},
			},
			{
				Process: "evil.exe", Count: 100, Malware: true,
				ClassesSNI: map[string]uint64{"cnc.bad.net": 100},
				ClassesPort: map[string]uint64{"443": 100},
			},
		},
	}
	fm := buildFingerprintModel(raw)
	return &Model{
		fps:        map[string]*fingerprintModel{raw.StrRepr: fm},
		asn:        &asnTable{},
		watch:      &watchlist{names: map[string]bool{}, addresses: map[string]bool{}},
		seeded:     map[string]bool{},
		Prevalence: NewPrevalence(16),
	}
}

func TestPerformAnalysisUnlabeledOnMiss(t *testing.T) {
	m := buildTestModel()
	res := m.PerformAnalysis("tls/1/(unknown)", "", "1.2.3.4", 443, "")
	if !res.Unlabeled {
		t.Fatalf("expected unlabeled result for unknown fingerprint")
	}
}

func TestPerformAnalysisPicksMatchingSNIProcess(t *testing.T) {
	m := buildTestModel()
	res := m.PerformAnalysis("tls/1/(0303)((1301))()", "www.example.com", "93.184.216.34", 443, "")
	if res.Process != "chrome.exe" {
		t.Fatalf("expected chrome.exe to win given matching sni, got %q", res.Process)
	}
	if res.MalwareProb >= 0.5 {
		t.Fatalf("expected low malware probability for benign match, got %v", res.MalwareProb)
	}
}

func TestPerformAnalysisFavorsMalwareOnCNCMatch(t *testing.T) {
	m := buildTestModel()
	res := m.PerformAnalysis("tls/1/(0303)((1301))()", "cnc.bad.net", "10.0.0.1", 443, "")
	if res.Process != "evil.exe" {
		t.Fatalf("expected evil.exe to win given matching sni, got %q", res.Process)
	}
	if res.MalwareProb < 0.5 {
		t.Fatalf("expected high malware probability, got %v", res.MalwareProb)
	}
}

func TestWatchlistOverridesEncryptedDNSAttribute(t *testing.T) {
	m := buildTestModel()
	m.fps["tls/1/(0303)((1301))()"].processes[0].attrs = map[string]bool{"encrypted_dns": false}
	m.watch.names["doh.example.net"] = true
	res := m.PerformAnalysis("tls/1/(0303)((1301))()", "doh.example.net", "1.1.1.1", 443, "")
	if res.Attributes["encrypted_dns"] != 1.0 {
		t.Fatalf("expected watchlist match to force encrypted_dns=1.0, got %v", res.Attributes["encrypted_dns"])
	}
}

// TestRecomputeProbabilitiesMatchesFreshBuild verifies invariant P4: after
// RecomputeProbabilities(w'), scoring with the mutated model must match
// scoring a model built directly with w' from the start.
func TestRecomputeProbabilitiesMatchesFreshBuild(t *testing.T) {
	base := buildTestModel()
	newWeights := map[string]float64{
		"asn": 2, "port": 0.5, "domain": 1, "dst_ip": 1, "sni": 3, "ua": 1,
	}

	base.RecomputeProbabilities(newWeights)
	resRecomputed := base.PerformAnalysis("tls/1/(0303)((1301))()", "www.example.com", "93.184.216.34", 443, "")

	fresh := buildTestModelWithWeights(newWeights)
	resFresh := fresh.PerformAnalysis("tls/1/(0303)((1301))()", "www.example.com", "93.184.216.34", 443, "")

	if math.Abs(resRecomputed.MaxScore-resFresh.MaxScore) > 1e-9 {
		t.Fatalf("recomputed score %v does not match fresh-build score %v", resRecomputed.MaxScore, resFresh.MaxScore)
	}
	if resRecomputed.Process != resFresh.Process {
		t.Fatalf("recomputed process %q does not match fresh-build process %q", resRecomputed.Process, resFresh.Process)
	}
}

func TestTopTwo(t *testing.T) {
	indexMax, indexSec := topTwo([]float64{1, 5, 3, 5})
	if indexMax != 1 {
		t.Fatalf("expected index 1 as max, got %d", indexMax)
	}
	if indexSec != 3 && indexSec != 2 {
		t.Fatalf("expected index 2 or 3 as runner-up, got %d", indexSec)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float64{1, 2, 3})
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("expected softmax outputs to sum to 1, got %v", sum)
	}
}

func TestPrevalenceObserveAndCount(t *testing.T) {
	p := NewPrevalence(4)
	p.Observe("tls/1/(a)")
	p.Observe("tls/1/(a)")
	p.Observe("tls/1/(b)")
	if got := p.Count("tls/1/(a)"); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
	if got := p.Count("tls/1/(c)"); got != 0 {
		t.Fatalf("expected count 0 for unseen fingerprint, got %d", got)
	}
}

func TestPrevalenceEvictsLeastRecentlyUsed(t *testing.T) {
	p := NewPrevalence(2)
	p.Observe("a")
	p.Observe("b")
	p.Observe("c") // evicts "a"
	if got := p.Count("a"); got != 0 {
		t.Fatalf("expected eviction of least-recently-used entry, still found count %d", got)
	}
	if got := p.Count("c"); got != 1 {
		t.Fatalf("expected c to be tracked, got count %d", got)
	}
}

func TestReadVersionRequiresExactlyOneQualifier(t *testing.T) {
	if _, err := readVersionFromString("lite"); err != nil {
		t.Fatalf("expected lite to be valid: %v", err)
	}
	if _, err := readVersionFromString("dual;lite"); err == nil {
		t.Fatalf("expected two qualifiers to be rejected")
	}
	if _, err := readVersionFromString("unknown"); err == nil {
		t.Fatalf("expected an unrecognized qualifier to be rejected")
	}
}

func TestHasExactlySixFeatures(t *testing.T) {
	ok := map[string]float64{"asn": 1, "port": 1, "domain": 1, "dst_ip": 1, "sni": 1, "ua": 1}
	if !hasExactlySixFeatures(ok) {
		t.Fatalf("expected exact 6-feature set to pass")
	}
	missing := map[string]float64{"asn": 1, "port": 1}
	if hasExactlySixFeatures(missing) {
		t.Fatalf("expected a partial feature set to fail")
	}
	extra := map[string]float64{"asn": 1, "port": 1, "domain": 1, "dst_ip": 1, "sni": 1, "ua": 1, "bogus": 1}
	if hasExactlySixFeatures(extra) {
		t.Fatalf("expected an extra unknown feature to fail")
	}
}
