package classifier

// ProcessInfo is the exported summary of one candidate process
// associated with a fingerprint record, surfaced by Lookup for
// internal/api's debugging endpoint.
type ProcessInfo struct {
	Name    string
	Count   uint64
	Malware bool
	OSInfo  []OSInfo
}

// FingerprintInfo is the exported process table for one fingerprint
// string, per SPEC_FULL.md 3.6's GET /fingerprints/{fp} endpoint.
type FingerprintInfo struct {
	StrRepr string
	FPType  string
	Total   uint64
	Processes []ProcessInfo
}

// Lookup returns the process table for a fingerprint string exactly as
// loaded from the archive, without running any analysis. ok is false if
// the fingerprint (or its randomized-fallback variant, per spec.md
// 4.G's "randomized" lookup path) is not present in the model.
func (m *Model) Lookup(fpStr string) (FingerprintInfo, bool) {
	fm, ok := m.fps[fpStr]
	if !ok {
		fm, ok = m.fps[randomizedVariant(fpStr)]
	}
	if !ok {
		return FingerprintInfo{}, false
	}

	info := FingerprintInfo{StrRepr: fm.strRepr, FPType: fm.fpType}
	for _, p := range fm.processes {
		info.Total += p.count
		info.Processes = append(info.Processes, ProcessInfo{
			Name:    p.name,
			Count:   p.count,
			Malware: p.malware,
			OSInfo:  p.osInfo,
		})
	}
	return info, true
}
