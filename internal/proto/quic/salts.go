package quic

// initialSalts maps each version to the 20-byte HKDF salt used to derive Initial secrets
// for a given QUIC version, per RFC 9001 section 5.2 and its draft-stage
// predecessors. The salt table below is transcribed from the version
// history mercury tracks: every draft from draft-22 through the final
// version-1 salt, since middleboxes and older clients still emit some of
// these on the wire.
var initialSalts = map[uint32][]byte{
	4278190102: saltD22,    // draft-22
	4278190103: saltD23D28, // draft-23
	4278190104: saltD23D28, // draft-24
	4278190105: saltD23D28, // draft-25
	4278190106: saltD23D28, // draft-26
	4278190107: saltD23D28, // draft-27
	4278190108: saltD23D28, // draft-28
	4278190109: saltD29D32, // draft-29
	4278190110: saltD29D32, // draft-30
	4278190111: saltD29D32, // draft-31
	4278190112: saltD29D32, // draft-32
	4278190113: saltD33V1,  // draft-33
	4278190114: saltD33V1,  // draft-34
	1:          saltD33V1,  // version-1
}

var (
	saltD22 = []byte{
		0x7f, 0xbc, 0xdb, 0x0e, 0x7c, 0x66, 0xbb, 0xe9, 0x19, 0x3a,
		0x96, 0xcd, 0x21, 0x51, 0x9e, 0xbd, 0x7a, 0x02, 0x64, 0x4a,
	}
	saltD23D28 = []byte{
		0xc3, 0xee, 0xf7, 0x12, 0xc7, 0x2e, 0xbb, 0x5a, 0x11, 0xa7,
		0xd2, 0x43, 0x2b, 0xb4, 0x63, 0x65, 0xbe, 0xf9, 0xf5, 0x02,
	}
	saltD29D32 = []byte{
		0xaf, 0xbf, 0xec, 0x28, 0x99, 0x93, 0xd2, 0x4c, 0x9e, 0x97,
		0x86, 0xf1, 0x9c, 0x61, 0x11, 0xe0, 0x43, 0x90, 0xa8, 0x99,
	}
	saltD33V1 = []byte{
		0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3, 0x4d, 0x17,
		0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad, 0xcc, 0xbb, 0x7f, 0x0a,
	}
)

// Google QUIC versions are recognized but not decrypted, matching
// upstream's "report gquic, but don't decrypt it" stance.
const (
	versionQ043 = 0x51303433
	versionQ046 = 0x51303436
	versionQ050 = 0x51303530
)

func isGoogleQUIC(v uint32) bool {
	switch v {
	case versionQ043, versionQ046, versionQ050:
		return true
	}
	return false
}

func getInitialSalt(version uint32) ([]byte, bool) {
	s, ok := initialSalts[version]
	return s, ok
}
