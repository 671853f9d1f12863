package classifier

import (
	"bufio"
	"os"
	"strings"
)

// watchlist holds the DoH (DNS-over-HTTPS) provider watchlist: hostnames
// and addresses whose traffic should always be tagged with the
// encrypted_dns attribute, regardless of what the naive-Bayes score says,
// per spec.md 4.G ("watchlist override forces encrypted_dns to 1.0").
type watchlist struct {
	names     map[string]bool
	addresses map[string]bool
}

func loadWatchlist(path string) (*watchlist, error) {
	w := &watchlist{names: map[string]bool{}, addresses: map[string]bool{}}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if looksLikeIP(line) {
			w.addresses[line] = true
		} else {
			w.names[strings.ToLower(line)] = true
		}
	}
	return w, scanner.Err()
}

func looksLikeIP(s string) bool {
	for _, r := range s {
		if r != '.' && r != ':' && (r < '0' || r > '9') && !(r >= 'a' && r <= 'f') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return strings.Contains(s, ".") || strings.Contains(s, ":")
}

// matches reports whether the given SNI or destination IP is on the DoH
// watchlist.
func (w *watchlist) matches(sni, dstIP string) bool {
	if w == nil {
		return false
	}
	if sni != "" && w.names[strings.ToLower(sni)] {
		return true
	}
	return w.addresses[dstIP]
}
