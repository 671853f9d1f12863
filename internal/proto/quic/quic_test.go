package quic

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"
)

func varint(v uint64) []byte {
	switch {
	case v < 64:
		return []byte{byte(v)}
	case v < 16384:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v)|0x4000)
		return b
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v)|0x80000000)
		return b
	}
}

// buildProtectedInitialPacket assembles a wire-format QUIC Initial packet
// by running RFC 9001's key schedule and packet protection forwards, so
// that Decrypt (which runs it backwards) can be checked against a known
// plaintext rather than a hand-transcribed hex vector.
func buildProtectedInitialPacket(t *testing.T, version uint32, dcid []byte, plaintext []byte) []byte {
	t.Helper()
	keys, ok := deriveInitialKeys(version, dcid)
	if !ok {
		t.Fatalf("no initial salt for version %d", version)
	}

	const pnLength = 1
	pnBytes := []byte{2}

	clearByte0 := byte(0xc0) // long header, Initial, pnLength-1 = 0

	cipherLen := len(plaintext) + 16
	lengthValue := uint64(pnLength + cipherLen)
	lengthField := varint(lengthValue)

	header := []byte{clearByte0}
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], version)
	header = append(header, versionBytes[:]...)
	header = append(header, byte(len(dcid)))
	header = append(header, dcid...)
	header = append(header, 0) // scid length = 0
	header = append(header, 0) // token length varint = 0
	header = append(header, lengthField...)

	aad := append(append([]byte{}, header...), pnBytes...)

	block, err := aes.NewCipher(keys.key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("cipher.NewGCM: %v", err)
	}
	nonce := make([]byte, len(keys.iv))
	copy(nonce, keys.iv)
	nonce[len(nonce)-pnLength] ^= pnBytes[0]
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	unprotectedPayload := append(append([]byte{}, pnBytes...), ciphertext...)
	sample := unprotectedPayload[sampleOffset : sampleOffset+16]

	hpBlock, err := aes.NewCipher(keys.hp)
	if err != nil {
		t.Fatalf("aes.NewCipher(hp): %v", err)
	}
	mask := make([]byte, 16)
	hpBlock.Encrypt(mask, sample)

	protectedByte0 := clearByte0 ^ (mask[0] & 0x0f)
	protectedPN := []byte{pnBytes[0] ^ mask[1]}

	packet := []byte{protectedByte0}
	packet = append(packet, header[1:]...)
	packet = append(packet, protectedPN...)
	packet = append(packet, ciphertext...)

	// RFC 9000 requires client Initial datagrams be padded to 1200 bytes.
	for len(packet) < minPDULen {
		packet = append(packet, 0)
	}
	return packet
}

func TestDecryptRoundTrip(t *testing.T) {
	dcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	chData := bytes.Repeat([]byte{0xab}, 1100)

	frame := append([]byte{}, byte(frameTypeCrypto))
	frame = append(frame, varint(0)...)
	frame = append(frame, varint(uint64(len(chData)))...)
	frame = append(frame, chData...)

	packet := buildProtectedInitialPacket(t, 1, dcid, frame)

	pkt := ParseInitialPacket(packet)
	if !pkt.IsNotEmpty() {
		t.Fatalf("expected non-empty initial packet")
	}
	if pkt.Version != 1 {
		t.Fatalf("version = %d, want 1", pkt.Version)
	}
	if !bytes.Equal(pkt.DCID, dcid) {
		t.Fatalf("dcid mismatch: got %x want %x", pkt.DCID, dcid)
	}

	plaintext, ok := Decrypt(pkt)
	if !ok {
		t.Fatalf("Decrypt failed")
	}
	if !bytes.Equal(plaintext, frame) {
		t.Fatalf("decrypted plaintext mismatch: got %d bytes, want %d", len(plaintext), len(frame))
	}

	recovered := ExtractCryptoData(plaintext)
	if !bytes.Equal(recovered, chData) {
		t.Fatalf("recovered crypto data mismatch: got %d bytes, want %d", len(recovered), len(chData))
	}
}

func TestParseInitialPacketRejectsShortPacket(t *testing.T) {
	pkt := ParseInitialPacket(make([]byte, 100))
	if pkt.IsNotEmpty() {
		t.Fatalf("expected empty result for undersized packet")
	}
}

func TestParseInitialPacketRejectsUnknownVersion(t *testing.T) {
	packet := make([]byte, minPDULen)
	packet[0] = 0xc0
	binary.BigEndian.PutUint32(packet[1:5], 0xdeadbeef)
	pkt := ParseInitialPacket(packet)
	if pkt.IsNotEmpty() {
		t.Fatalf("expected empty result for unrecognized version")
	}
}

func TestParseInitialPacketRecognizesGoogleQUIC(t *testing.T) {
	header := []byte{0xc0}
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], versionQ046)
	header = append(header, versionBytes[:]...)
	header = append(header, 8)                  // dcid length
	header = append(header, make([]byte, 8)...) // dcid
	header = append(header, 0)                  // scid length
	header = append(header, 0)                  // token length
	header = append(header, varint(100)...)      // pn+payload length

	packet := append(header, make([]byte, 100)...)
	for len(packet) < minPDULen {
		packet = append(packet, 0)
	}

	pkt := ParseInitialPacket(packet)
	if !pkt.IsNotEmpty() || !pkt.GQUIC {
		t.Fatalf("expected Google QUIC version to be recognized, got %+v", pkt)
	}
	if _, ok := Decrypt(pkt); ok {
		t.Fatalf("expected Decrypt to refuse Google QUIC packets")
	}
}
