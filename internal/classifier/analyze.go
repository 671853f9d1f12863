package classifier

import (
	"math"
	"strconv"

	"golang.org/x/net/publicsuffix"
)

// Result is the outcome of PerformAnalysis for one observed fingerprint,
// surfaced verbatim into the JSON analysis object mercury attaches to a
// flow record.
type Result struct {
	FPType      string
	Unlabeled   bool // no fingerprint_db record, or all processes filtered out
	Randomized  bool // str_repr matched the archive's unlabeled sentinel only

	Process      string
	MalwareProb  float64
	MaxScore     float64
	OSInfo       []OSInfo
	Attributes   map[string]float64 // attribute name -> probability
	Prevalent    bool               // seeded or repeatedly observed at runtime
}

// PerformAnalysis scores a single observed fingerprint against the model,
// implementing spec.md 4.G's naive-Bayes classification:
//
//  1. a fingerprint absent from the archive is scored against its
//     "protocol/randomized/..." variant if the archive has one, and is
//     otherwise reported Unlabeled;
//  2. asn and the top-two-label domain of sni are derived for feature
//     lookup;
//  3. scores start at each process's prior and accumulate additive
//     per-feature log-likelihood deltas;
//  4. the top two scoring processes are found in one pass;
//  5. if the top process is the unlabeled sentinel, the runner-up takes
//     its place unless the record is pure-malware;
//  6. scores are normalized to probabilities via a softmax-style
//     exp(score-max) transform;
//  7. a DoH-watchlist hit forces the encrypted_dns attribute to 1.0
//     regardless of the scored probability.
func (m *Model) PerformAnalysis(fpStr, sni, dstIP string, dstPort uint16, ua string) Result {
	fm, ok := m.fps[fpStr]
	if !ok {
		if rfm, ok := m.fps[randomizedVariant(fpStr)]; ok {
			fm = rfm
		} else {
			return Result{Unlabeled: true}
		}
	}
	if fm.numProcesses() == 1 && fm.processes[0].name == unlabeledSentinel {
		return Result{FPType: fm.fpType, Unlabeled: true, Randomized: true}
	}

	asn := m.asn.Lookup(dstIP)
	domain := topTwoLabelDomain(sni)
	port := strconv.Itoa(int(dstPort))

	scores := make([]float64, fm.numProcesses())
	for i := range scores {
		scores[i] = fm.prior[i] + fm.basePriorShift
	}
	addDelta(scores, fm.deltas["asn"], asn)
	addDelta(scores, fm.deltas["port"], port)
	addDelta(scores, fm.deltas["domain"], domain)
	addDelta(scores, fm.deltas["dst_ip"], dstIP)
	addDelta(scores, fm.deltas["sni"], sni)
	addDelta(scores, fm.deltas["ua"], ua)

	indexMax, indexSec := topTwo(scores)

	chosen := indexMax
	if fm.processes[indexMax].name == unlabeledSentinel && !fm.processes[indexMax].malware && indexSec >= 0 {
		chosen = indexSec
	}

	probs := softmax(scores)
	malwareProb := 0.0
	for i, p := range fm.processes {
		if p.malware {
			malwareProb += probs[i]
		}
	}

	attrs := map[string]float64{}
	for i, p := range fm.processes {
		for a := range p.attrs {
			attrs[a] += probs[i]
		}
	}
	if m.watch.matches(sni, dstIP) {
		attrs["encrypted_dns"] = 1.0
	}

	prevalent := m.isSeeded(fpStr) || m.Prevalence.Count(fpStr) > 1

	return Result{
		FPType:      fm.fpType,
		Process:     fm.processes[chosen].name,
		MalwareProb: malwareProb,
		MaxScore:    scores[indexMax],
		OSInfo:      fm.processes[chosen].osInfo,
		Attributes:  attrs,
		Prevalent:   prevalent,
	}
}

// randomizedVariant replaces a fingerprint string's version segment
// ("tls/1/..." -> "tls/randomized/...") to look up the archive's fallback
// entry for TLS clients that randomize their extension order/GREASE
// placement per draft-grease-like behavior, mirroring the original
// implementation's fingerprint::get_match fallback.
func randomizedVariant(fpStr string) string {
	first := -1
	second := -1
	for i := 0; i < len(fpStr); i++ {
		if fpStr[i] == '/' {
			if first == -1 {
				first = i
			} else {
				second = i
				break
			}
		}
	}
	if first == -1 || second == -1 {
		return fpStr
	}
	return fpStr[:first+1] + "randomized" + fpStr[second:]
}

// addDelta adds the per-process delta for the observed feature value, if
// the model has ever seen that value for this feature; unseen values
// contribute nothing (the Laplace smoothing is already baked into every
// value's own delta at build time, so an unseen value is scored as
// "no evidence either way" rather than via an extra smoothing term here).
func addDelta(scores []float64, byValue map[string][]float64, value string) {
	if value == "" {
		return
	}
	delta, ok := byValue[value]
	if !ok {
		return
	}
	for i := range scores {
		if i < len(delta) {
			scores[i] += delta[i]
		}
	}
}

// topTwo returns the indices of the largest and second-largest values in
// scores in a single pass. indexSec is -1 if scores has fewer than two
// elements.
func topTwo(scores []float64) (indexMax, indexSec int) {
	indexMax, indexSec = 0, -1
	for i := 1; i < len(scores); i++ {
		switch {
		case scores[i] > scores[indexMax]:
			indexSec = indexMax
			indexMax = i
		case indexSec == -1 || scores[i] > scores[indexSec]:
			indexSec = i
		}
	}
	return indexMax, indexSec
}

// softmax converts raw log-scores into probabilities, subtracting the max
// before exponentiating for numerical stability.
func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// topTwoLabelDomain returns the registrable domain (eTLD+1) of an SNI,
// e.g. "www.example.co.uk" -> "example.co.uk", used as the "domain"
// feature distinct from the raw "sni" feature.
func topTwoLabelDomain(sni string) string {
	if sni == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(sni)
	if err != nil {
		return sni
	}
	return domain
}

// RecomputeProbabilities rescales every fingerprint's per-feature deltas
// to newWeights and shifts every process prior by the model's base prior
// times the sum of weight deltas, per spec.md 4.G: "recompute_probabilities
// rescales each delta by new_w/old_w and shifts every process_prior by
// base_prior * (sum(new_w) - sum(old_w))". Because weighted deltas are
// stored alongside their unweighted counterparts (model.go), rescaling
// multiplies rather than recomputes from raw counts, so the result is
// identical to a fresh model built with newWeights.
func (m *Model) RecomputeProbabilities(newWeights map[string]float64) {
	for _, fm := range m.fps {
		var shift float64
		for _, feature := range Features {
			oldW := fm.weights[feature]
			newW, ok := newWeights[feature]
			if !ok {
				continue
			}
			shift += newW - oldW
			for value, u := range fm.unweighted[feature] {
				w := make([]float64, len(u))
				for i := range u {
					w[i] = newW * u[i]
				}
				fm.deltas[feature][value] = w
			}
			fm.weights[feature] = newW
		}
		fm.basePriorShift += basePriorOf(fm) * shift
	}
}

// basePriorOf returns the reference log-prior used to scale
// basePriorShift: the prior of the unlabeled/background process if
// present, else the mean of all process priors.
func basePriorOf(fm *fingerprintModel) float64 {
	for i, p := range fm.processes {
		if p.name == unlabeledSentinel {
			return fm.prior[i]
		}
	}
	if len(fm.prior) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range fm.prior {
		sum += p
	}
	return sum / float64(len(fm.prior))
}
