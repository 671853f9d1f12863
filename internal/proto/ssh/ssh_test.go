package ssh

import (
	"testing"

	"github.com/andrewchi/mercury/pkg/cursor"
)

func TestParseBanner(t *testing.T) {
	b := ParseBanner(cursor.New([]byte("SSH-2.0-OpenSSH_9.3\r\nnext line")))
	if !b.IsNotEmpty() || b.Raw != "SSH-2.0-OpenSSH_9.3" {
		t.Fatalf("unexpected banner: %+v", b)
	}
}

func TestParseBannerRejectsNonSSH(t *testing.T) {
	b := ParseBanner(cursor.New([]byte("HTTP/1.1 200 OK\r\n")))
	if b.IsNotEmpty() {
		t.Fatalf("expected empty banner, got %+v", b)
	}
}

func buildKexInitPacket() []byte {
	nameList := func(s string) []byte {
		out := make([]byte, 4+len(s))
		n := uint32(len(s))
		out[0] = byte(n >> 24)
		out[1] = byte(n >> 16)
		out[2] = byte(n >> 8)
		out[3] = byte(n)
		copy(out[4:], s)
		return out
	}
	var payload []byte
	payload = append(payload, msgKexInit)
	payload = append(payload, make([]byte, 16)...) // cookie
	lists := []string{
		"curve25519-sha256", "rsa-sha2-512", "aes128-gcm@openssh.com",
		"aes128-gcm@openssh.com", "hmac-sha2-256", "hmac-sha2-256",
		"none", "none", "", "",
	}
	for _, l := range lists {
		payload = append(payload, nameList(l)...)
	}
	payload = append(payload, 0) // first_kex_packet_follows = false
	payload = append(payload, 0, 0, 0, 0)

	paddingLen := 8 - (len(payload)+1)%8
	if paddingLen < 4 {
		paddingLen += 8
	}
	packetLen := 1 + len(payload) + paddingLen

	out := make([]byte, 4)
	pl := uint32(packetLen)
	out[0] = byte(pl >> 24)
	out[1] = byte(pl >> 16)
	out[2] = byte(pl >> 8)
	out[3] = byte(pl)
	out = append(out, byte(paddingLen))
	out = append(out, payload...)
	out = append(out, make([]byte, paddingLen)...)
	return out
}

func TestParseKexInit(t *testing.T) {
	raw := buildKexInitPacket()
	k := ParsePacket(cursor.New(raw))
	if !k.IsNotEmpty() {
		t.Fatalf("expected non-empty KexInit")
	}
	if len(k.KexAlgorithms) != 1 || k.KexAlgorithms[0] != "curve25519-sha256" {
		t.Fatalf("unexpected kex algorithms: %v", k.KexAlgorithms)
	}
	if k.FirstKexPacketFollows {
		t.Fatalf("expected first_kex_packet_follows false")
	}
}

func TestParseKexInitWrongMessageType(t *testing.T) {
	raw := []byte{0, 0, 0, 2, 0, 99}
	k := ParsePacket(cursor.New(raw))
	if k.IsNotEmpty() {
		t.Fatalf("expected empty result for non-KEXINIT message")
	}
}
