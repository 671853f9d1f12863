package quic

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
)

var (
	labelClientIn = []byte("client in")
	labelQUICKey  = []byte("quic key")
	labelQUICIV   = []byte("quic iv")
	labelQUICHP   = []byte("quic hp")
)

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446 7.1),
// which RFC 9001 reuses to derive QUIC's Initial keys. golang.org/x/crypto
// only exposes the raw HKDF primitives, so the "tls13 "+label wire struct
// has to be built by hand before calling hkdf.Expand.
func hkdfExpandLabel(secret, label, context []byte, length int) []byte {
	fullLabel := append([]byte("tls13 "), label...)
	info := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	info = append(info, byte(length>>8), byte(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	if _, err := r.Read(out); err != nil {
		return nil
	}
	return out
}

// initialKeys are the three keys derived from a connection ID and
// QUIC version needed to remove header protection and decrypt an Initial
// packet's AEAD payload.
type initialKeys struct {
	key []byte // AES-128-GCM key
	iv  []byte // AEAD nonce base
	hp  []byte // header-protection key
}

func deriveInitialKeys(version uint32, dcid []byte) (initialKeys, bool) {
	salt, ok := getInitialSalt(version)
	if !ok {
		return initialKeys{}, false
	}
	initialSecret := hkdf.Extract(sha256.New, dcid, salt)
	clientInitialSecret := hkdfExpandLabel(initialSecret, labelClientIn, nil, 32)

	return initialKeys{
		key: hkdfExpandLabel(clientInitialSecret, labelQUICKey, nil, 16),
		iv:  hkdfExpandLabel(clientInitialSecret, labelQUICIV, nil, 12),
		hp:  hkdfExpandLabel(clientInitialSecret, labelQUICHP, nil, 16),
	}, true
}

// sampleOffset is the fixed offset (in bytes, from the start of the
// still-protected packet number field) of the 16-byte sample used to
// derive the header protection mask, per RFC 9001 5.4.2. It does not vary
// with the packet number's actual encoded length.
const sampleOffset = 4

// Decrypt removes header protection and AEAD-decrypts a QUIC Initial
// packet's payload, per RFC 9001. It returns the decrypted frame stream
// (still containing CRYPTO frames and any padding/ACK/etc. frames mixed
// in) or false if the packet's version has no known Initial secret, the
// packet is malformed, or the AEAD tag does not verify. Google QUIC
// packets (recognized by ParseInitialPacket) are refused here, as
// mercury does not have their key schedule.
func Decrypt(pkt InitialPacket) ([]byte, bool) {
	if !pkt.IsNotEmpty() || pkt.GQUIC {
		return nil, false
	}
	keys, ok := deriveInitialKeys(pkt.Version, pkt.DCID)
	if !ok || len(pkt.Payload) < sampleOffset+16 {
		return nil, false
	}

	block, err := aes.NewCipher(keys.hp)
	if err != nil {
		return nil, false
	}
	sample := pkt.Payload[sampleOffset : sampleOffset+16]
	mask := make([]byte, 16)
	block.Encrypt(mask, sample)

	unmaskedByte0 := pkt.ConnectionInfo ^ (mask[0] & 0x0f)
	pnLength := int(unmaskedByte0&0x03) + 1

	if len(pkt.Payload) < pnLength {
		return nil, false
	}

	aad := make([]byte, 0, len(pkt.Header)+pnLength)
	aad = append(aad, unmaskedByte0)
	aad = append(aad, pkt.Header[1:]...)

	packetNumberBytes := make([]byte, pnLength)
	for i := 0; i < pnLength; i++ {
		packetNumberBytes[i] = mask[i+1] ^ pkt.Payload[i]
	}
	aad = append(aad, packetNumberBytes...)

	iv := make([]byte, len(keys.iv))
	copy(iv, keys.iv)
	for i := 0; i < pnLength; i++ {
		iv[len(iv)-pnLength+i] ^= mask[i+1] ^ pkt.Payload[i]
	}

	block2, err := aes.NewCipher(keys.key)
	if err != nil {
		return nil, false
	}
	aead, err := cipher.NewGCM(block2)
	if err != nil {
		return nil, false
	}

	ciphertext := pkt.Payload[pnLength:]
	plaintext, err := aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
