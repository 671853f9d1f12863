package fingerprint

import (
	"testing"

	"github.com/andrewchi/mercury/internal/proto/dhcp"
	appHTTP "github.com/andrewchi/mercury/internal/proto/http"
	"github.com/andrewchi/mercury/internal/proto/ssh"
	"github.com/andrewchi/mercury/internal/proto/tls"
)

func TestIsTLSGrease(t *testing.T) {
	greaseValues := []uint16{0x0a0a, 0x1a1a, 0x2a2a, 0xdada, 0xfafa}
	for _, v := range greaseValues {
		if !isTLSGrease(v) {
			t.Errorf("expected %#04x to be recognized as GREASE", v)
		}
	}
	notGrease := []uint16{0x1301, 0x002a, 0x0a1a, 0x1a0a}
	for _, v := range notGrease {
		if isTLSGrease(v) {
			t.Errorf("expected %#04x to not be recognized as GREASE", v)
		}
	}
}

func TestBuildTLSDeterministic(t *testing.T) {
	ch := tls.ClientHello{
		Version:      0x0303,
		CipherSuites: []uint16{0x1301, 0x1302, 0x0a0a},
		Extensions: []tls.Extension{
			{ID: 0, Data: []byte("example.com")},
			{ID: 0x2a2a, Data: []byte{1, 2, 3}},
		},
	}
	fp1, ok1 := BuildTLS(ch)
	fp2, ok2 := BuildTLS(ch)
	if !ok1 || !ok2 {
		t.Fatalf("expected valid fingerprints")
	}
	if fp1 != fp2 {
		t.Fatalf("fingerprint not deterministic: %q vs %q", fp1, fp2)
	}
}

func TestBuildTLSGreaseNormalizationIsStable(t *testing.T) {
	ch1 := tls.ClientHello{
		Version:      0x0303,
		CipherSuites: []uint16{0x1301, 0x0a0a},
		Extensions:   []tls.Extension{{ID: 0x1301}},
	}
	ch2 := tls.ClientHello{
		Version:      0x0303,
		CipherSuites: []uint16{0x1301, 0xdada}, // different GREASE value
		Extensions:   []tls.Extension{{ID: 0x1301}},
	}
	fp1, ok1 := BuildTLS(ch1)
	fp2, ok2 := BuildTLS(ch2)
	if !ok1 || !ok2 {
		t.Fatalf("expected valid fingerprints")
	}
	if fp1 != fp2 {
		t.Fatalf("expected GREASE-varying inputs to normalize identically: %q vs %q", fp1, fp2)
	}
}

func TestBuildTLSKnownVector(t *testing.T) {
	// scenario #1: ClientHello to 93.184.216.34:443, SNI example.com,
	// cipher list [0x1301,0x1302,0x1303,0xc02b,0xc02f], extensions
	// [0,23,65281,10,11,35,16,5,13,18,51,45,43,27,17513]. Extension 0
	// (server_name) carries example.com as its payload but must be
	// masked to a bare id, not embedded, so cross-host clustering
	// isn't defeated by the literal hostname.
	ch := tls.ClientHello{
		Version:      0x0303,
		CipherSuites: []uint16{0x1301, 0x1302, 0x1303, 0xc02b, 0xc02f},
		Extensions: []tls.Extension{
			{ID: 0, Data: []byte("example.com")},
			{ID: 23}, {ID: 65281}, {ID: 10}, {ID: 11}, {ID: 35}, {ID: 16},
			{ID: 5}, {ID: 13}, {ID: 18}, {ID: 51}, {ID: 45}, {ID: 43},
			{ID: 27}, {ID: 17513},
		},
	}
	want := "tls/1/(0303)(130113021303c02bc02f)" +
		"((0000)(0017)(ff01)(000a)(000b)(0023)(0010)(0005)(000d)(0012)(0033)(002d)(002b)(001b)(4469))"

	fp, ok := BuildTLS(ch)
	if !ok {
		t.Fatalf("expected valid fingerprint")
	}
	if fp != want {
		t.Fatalf("fingerprint mismatch:\n got  %q\n want %q", fp, want)
	}
}

func TestBuildTLSOrderMatters(t *testing.T) {
	base := tls.ClientHello{Version: 0x0303, CipherSuites: []uint16{0x1301, 0x1302}}
	reordered := tls.ClientHello{Version: 0x0303, CipherSuites: []uint16{0x1302, 0x1301}}
	fp1, _ := BuildTLS(base)
	fp2, _ := BuildTLS(reordered)
	if fp1 == fp2 {
		t.Fatalf("expected reordered cipher suites to change the fingerprint")
	}
}

func TestBuildTLSEmpty(t *testing.T) {
	if _, ok := BuildTLS(tls.ClientHello{}); ok {
		t.Fatalf("expected empty ClientHello to yield invalid fingerprint")
	}
}

func TestBuildQUICGreaseTransportParam(t *testing.T) {
	ch := tls.ClientHello{Version: 0x0304, CipherSuites: []uint16{0x1301}}
	params := []TransportParameter{{ID: 27}, {ID: 27 + 31}}
	fp, ok := BuildQUIC(1, ch, params)
	if !ok {
		t.Fatalf("expected valid fingerprint")
	}
	if !contains(fp, "(1b)(1b)") {
		t.Fatalf("expected both GREASE transport params normalized to 1b, got %q", fp)
	}
}

func TestBuildHTTPRequest(t *testing.T) {
	req := appHTTP.Request{
		Method:  "GET",
		URI:     "/",
		Version: "HTTP/1.1",
		Headers: []appHTTP.Header{{Name: "host", Value: "example.com"}, {Name: "accept"}},
	}
	fp, ok := BuildHTTPRequest(req)
	if !ok {
		t.Fatalf("expected valid fingerprint")
	}
	if !contains(fp, "(GET)") || !contains(fp, "(host: example.com)") || !contains(fp, "(accept)") {
		t.Fatalf("unexpected fingerprint: %q", fp)
	}
}

func TestBuildSSH(t *testing.T) {
	banner := ssh.Banner{Raw: "SSH-2.0-OpenSSH_9.3"}
	kex := ssh.KexInit{KexAlgorithms: []string{"curve25519-sha256"}, ServerHostKeyAlgorithms: []string{"rsa-sha2-512"}}
	fp, ok := BuildSSH(banner, kex)
	if !ok {
		t.Fatalf("expected valid fingerprint")
	}
	if !contains(fp, "SSH-2.0-OpenSSH_9.3") || !contains(fp, "curve25519-sha256") {
		t.Fatalf("unexpected fingerprint: %q", fp)
	}
}

func TestBuildDHCP(t *testing.T) {
	msg := dhcp.Message{Op: 1, Options: []dhcp.Option{{Code: 55, Value: []byte{1, 3, 6}}, {Code: 60, Value: []byte("MSFT")}}}
	fp, ok := BuildDHCP(msg)
	if !ok {
		t.Fatalf("expected valid fingerprint")
	}
	if !contains(fp, "(373c)") || !contains(fp, "(MSFT)") {
		t.Fatalf("unexpected fingerprint: %q", fp)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
