package classifier

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Model is the immutable, built-once classifier state shared by
// reference across all workers, per spec.md 5 ("build once, then share by
// reference"). Prevalence is the one mutable component.
type Model struct {
	Variant string // "dual", "lite", or "full", from VERSION
	fps     map[string]*fingerprintModel
	asn     *asnTable
	watch   *watchlist
	seeded  map[string]bool // fp_prevalence_tls.txt seed set

	Prevalence *Prevalence
}

// rawProcessInfo mirrors one entry of a fingerprint_db.json record's
// process_info array.
type rawProcessInfo struct {
	Process    string          `json:"process"`
	Count      uint64          `json:"count"`
	Malware    bool            `json:"malware"`
	OSInfo     []OSInfo        `json:"os_info"`
	ClassesASN map[string]uint64 `json:"classes_ip_asn"`
	ClassesPort map[string]uint64 `json:"classes_port_applications"`
	ClassesDomain map[string]uint64 `json:"classes_hostname_domains"`
	ClassesIP  map[string]uint64 `json:"classes_ip_ip"`
	ClassesSNI map[string]uint64 `json:"classes_hostname_sni"`
	ClassesUA  map[string]uint64 `json:"classes_hostname_useragent"`
	Attributes []string        `json:"attributes"`
}

type rawFingerprintRecord struct {
	StrRepr        string             `json:"str_repr"`
	FPType         string             `json:"fp_type"`
	TotalCount     uint64             `json:"total_count"`
	FeatureWeights map[string]float64 `json:"feature_weights"`
	ProcessInfo    []rawProcessInfo   `json:"process_info"`
}

// ProcDstThreshold gates which processes from a raw record's process_info
// survive into the built model, per spec.md 4.G ("count/total ≥
// proc_dst_threshold, or it is malware, or it is the top process").
// cmd/mercuryd sets this from config.ClassifierConfig.ProcDstThreshold
// once at startup, before the first LoadArchive call.
var ProcDstThreshold = 0.005

// LoadArchive reads a mercury-style resource archive directory (VERSION,
// pyasn.db, fp_prevalence_tls.txt, fingerprint_db(.lite).json,
// doh-watchlist.txt) and builds an immutable Model. Per spec.md 4.G, a
// missing VERSION file, a VERSION not matching exactly one of
// dual/lite/full, or a missing fingerprint DB disables the classifier —
// callers should treat a non-nil error as "run without analysis," not a
// fatal condition.
func LoadArchive(dir string) (*Model, error) {
	variant, err := readVersion(filepath.Join(dir, "VERSION"))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	asn, err := loadASNTable(filepath.Join(dir, "pyasn.db"))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	seeded, err := loadSeededSet(filepath.Join(dir, "fp_prevalence_tls.txt"))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	dbPath := filepath.Join(dir, "fingerprint_db.json")
	litePath := filepath.Join(dir, "fingerprint_db_lite.json")
	useLite := variant == "lite" || variant == "dual"
	if useLite {
		if _, err := os.Stat(litePath); err == nil {
			dbPath = litePath
		}
	}
	fps, err := loadFingerprintDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	watch, err := loadWatchlist(filepath.Join(dir, "doh-watchlist.txt"))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	return &Model{
		Variant:    variant,
		fps:        fps,
		asn:        asn,
		watch:      watch,
		seeded:     seeded,
		Prevalence: NewPrevalence(DefaultPrevalenceCapacity),
	}, nil
}

// readVersion parses a single line of ';'-separated qualifiers and
// requires exactly one of dual/lite/full among them.
func readVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return readVersionFromString(string(data))
}

func readVersionFromString(contents string) (string, error) {
	line := strings.TrimSpace(contents)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	var found string
	count := 0
	for _, part := range strings.Split(line, ";") {
		switch strings.TrimSpace(part) {
		case "dual", "lite", "full":
			found = strings.TrimSpace(part)
			count++
		}
	}
	if count != 1 {
		return "", fmt.Errorf("VERSION must name exactly one of dual|lite|full, found %d", count)
	}
	return found, nil
}

func loadSeededSet(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	defer f.Close()

	seeded := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "tls/") {
			line = "tls/1/" + line
		}
		seeded[line] = true
	}
	return seeded, scanner.Err()
}

func loadFingerprintDB(path string) (map[string]*fingerprintModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fps := map[string]*fingerprintModel{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var raw rawFingerprintRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			log.Printf("classifier: skipping malformed fingerprint record: %v", err)
			continue
		}
		if len(raw.FeatureWeights) > 0 && !hasExactlySixFeatures(raw.FeatureWeights) {
			log.Printf("classifier: skipping %q: feature_weights does not name exactly the 6 declared features", raw.StrRepr)
			continue
		}
		if _, exists := fps[raw.StrRepr]; exists {
			log.Printf("classifier: duplicate fingerprint record %q, keeping first", raw.StrRepr)
			continue
		}
		fps[raw.StrRepr] = buildFingerprintModel(raw)
	}
	return fps, scanner.Err()
}

func hasExactlySixFeatures(weights map[string]float64) bool {
	if len(weights) != len(Features) {
		return false
	}
	for _, f := range Features {
		if _, ok := weights[f]; !ok {
			return false
		}
	}
	return true
}

func buildFingerprintModel(raw rawFingerprintRecord) *fingerprintModel {
	weights := raw.FeatureWeights
	if len(weights) == 0 {
		weights = defaultFeatureWeights()
	}

	var procs []process
	for _, p := range raw.ProcessInfo {
		ratio := 0.0
		if raw.TotalCount > 0 {
			ratio = float64(p.Count) / float64(raw.TotalCount)
		}
		isTop := len(procs) == 0 // process_info is assumed pre-sorted by count desc
		if ratio < ProcDstThreshold && !p.Malware && !isTop {
			continue
		}
		attrs := map[string]bool{}
		for _, a := range p.Attributes {
			attrs[a] = true
		}
		procs = append(procs, process{
			name:    p.Process,
			count:   p.Count,
			malware: p.Malware,
			osInfo:  p.OSInfo,
			attrs:   attrs,
		})
	}
	if len(procs) == 0 {
		procs = []process{{name: unlabeledSentinel}}
	}

	prior := make([]float64, len(procs))
	totals := make([]uint64, len(procs))
	for i, p := range procs {
		if raw.TotalCount > 0 {
			prior[i] = logf(float64(p.count+1) / float64(raw.TotalCount+uint64(len(procs))))
		}
		totals[i] = p.count + 1
	}

	m := &fingerprintModel{
		strRepr:    raw.StrRepr,
		fpType:     raw.FPType,
		processes:  procs,
		prior:      prior,
		deltas:     map[string]map[string][]float64{},
		unweighted: map[string]map[string][]float64{},
		weights:    weights,
	}
	// The built prior carries base_prior * sum(weights), the same term
	// RecomputeProbabilities later shifts by base_prior * sum(new - old).
	var weightSum float64
	for _, f := range Features {
		weightSum += weights[f]
	}
	m.basePriorShift = basePriorOf(m) * weightSum

	tables := map[string]func(rawProcessInfo) map[string]uint64{
		"asn":    func(p rawProcessInfo) map[string]uint64 { return p.ClassesASN },
		"port":   func(p rawProcessInfo) map[string]uint64 { return p.ClassesPort },
		"domain": func(p rawProcessInfo) map[string]uint64 { return p.ClassesDomain },
		"dst_ip": func(p rawProcessInfo) map[string]uint64 { return p.ClassesIP },
		"sni":    func(p rawProcessInfo) map[string]uint64 { return p.ClassesSNI },
		"ua":     func(p rawProcessInfo) map[string]uint64 { return p.ClassesUA },
	}
	// byName re-aligns raw.ProcessInfo to the (possibly filtered) procs
	// slice, since low-count processes may have been dropped above.
	byName := map[string]rawProcessInfo{}
	for _, p := range raw.ProcessInfo {
		byName[p.Process] = p
	}
	for _, feature := range Features {
		extract := tables[feature]
		table := featureTable{counts: map[string][]uint64{}}
		seenValues := map[string]bool{}
		for _, p := range procs {
			raw, ok := byName[p.name]
			if !ok {
				continue
			}
			for value := range extract(raw) {
				seenValues[value] = true
			}
		}
		table.distinctVals = len(seenValues)
		for value := range seenValues {
			counts := make([]uint64, len(procs))
			for i, p := range procs {
				raw, ok := byName[p.name]
				if !ok {
					continue
				}
				counts[i] = extract(raw)[value]
			}
			table.counts[value] = counts
		}
		w, u := buildFeatureDeltas(table, totals, weights[feature])
		m.deltas[feature] = w
		m.unweighted[feature] = u
	}
	return m
}

func defaultFeatureWeights() map[string]float64 {
	w := make(map[string]float64, len(Features))
	for _, f := range Features {
		w[f] = 1.0
	}
	return w
}

// asnTable holds the prefix/ASN rows of pyasn.db.
type asnTable struct {
	entries []asnEntry
}

type asnEntry struct {
	network uint32
	bits    int
	asn     string
}

func loadASNTable(path string) (*asnTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &asnTable{}, nil
		}
		return nil, err
	}
	defer f.Close()

	t := &asnTable{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		cidr, asn := parts[0], parts[1]
		net, bits, ok := parseCIDR(cidr)
		if !ok {
			continue
		}
		t.entries = append(t.entries, asnEntry{network: net, bits: bits, asn: asn})
	}
	return t, scanner.Err()
}

func parseCIDR(s string) (uint32, int, bool) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return 0, 0, false
	}
	ipPart, bitsPart := s[:slash], s[slash+1:]
	bits, err := strconv.Atoi(bitsPart)
	if err != nil || bits < 0 || bits > 32 {
		return 0, 0, false
	}
	ip, ok := parseIPv4(ipPart)
	if !ok {
		return 0, 0, false
	}
	return ip, bits, true
}

func parseIPv4(s string) (uint32, bool) {
	var octets [4]uint32
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return 0, false
		}
		octets[i] = uint32(v)
	}
	return octets[0]<<24 | octets[1]<<16 | octets[2]<<8 | octets[3], true
}

// Lookup returns the ASN for an IPv4 address string, using longest-prefix
// match, or "" if no entry covers it.
func (t *asnTable) Lookup(ip string) string {
	if t == nil {
		return ""
	}
	addr, ok := parseIPv4(ip)
	if !ok {
		return ""
	}
	best := -1
	bestASN := ""
	for _, e := range t.entries {
		mask := uint32(0xffffffff)
		if e.bits < 32 {
			mask = ^uint32(0) << (32 - e.bits)
		}
		if addr&mask == e.network&mask && e.bits > best {
			best = e.bits
			bestASN = e.asn
		}
	}
	return bestASN
}
