// Package docdat implements the DOCUMENT.DAT digital-manual container
// format used by PS1-on-PSP/PS3 and PSP manuals, including the BBMAC
// keyed authentication construction the PS1 variant depends on.
//
// The package is a bit-exact reimplementation: packing identical inputs
// twice yields byte-identical containers, and containers produced here are
// accepted by the original firmware consumers.
package docdat

// DocType selects the container variant: which cipher keys are used, the
// trailer shape (32 vs 48 bytes) and which index geometries are legal.
type DocType int

const (
	// DocTypePS1 is the legacy variant used by PS1 manuals running under
	// POPS on PSP/PS3. Blocks carry a BBMAC + SHA-1 trailer and the
	// container is accompanied by a KEYS.BIN holding the version key.
	DocTypePS1 DocType = 0

	// DocTypePSP is the variant used by PSP and PS minis manuals. Blocks
	// carry an all-zero MAC field plus two keyed HMAC-SHA1 digests.
	DocTypePSP DocType = 1
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	return t == DocTypePS1 || t == DocTypePSP
}

func (t DocType) String() string {
	switch t {
	case DocTypePS1:
		return "ps1"
	case DocTypePSP:
		return "psp"
	default:
		return "unknown"
	}
}

// Key vault identifiers for the fixed AES-128 keys underlying BBMAC.
const (
	keyIDMACFinal = 0x03 // XORed into the base tag at finalization
	keyIDMACChain = 0x38 // chained block encryption key
	keyIDMACStore = 0x63 // storage-confidentiality layer over stored tags
)

// Fixed AES-128 keys indexed by vault identifier. Extracted from the
// console firmware; constant for the process lifetime.
var keyVault = map[int][]byte{
	keyIDMACFinal: {0xE3, 0x50, 0xED, 0x1D, 0x91, 0x0A, 0x1F, 0xD0, 0x29, 0xBB, 0x1C, 0x3E, 0xF3, 0x40, 0x77, 0xFB},
	keyIDMACChain: {0x12, 0x46, 0x8D, 0x7E, 0x1C, 0x42, 0x20, 0x9B, 0xBA, 0x54, 0x26, 0x83, 0x5E, 0xB0, 0x33, 0x03},
	keyIDMACStore: {0x9C, 0x9B, 0x13, 0x72, 0xF8, 0xC6, 0x40, 0xCF, 0x1C, 0x62, 0xF5, 0xD5, 0x92, 0xDD, 0xB5, 0x82},
}

// vaultKey returns the fixed 16-byte AES key for the given identifier.
func vaultKey(id int) ([]byte, error) {
	key, ok := keyVault[id]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return key, nil
}

// DES key/IV pairs for the structure cipher, one pair per document type.
var (
	ps1DESKey = []byte{0x39, 0xF7, 0xEF, 0xA1, 0x6C, 0xCE, 0x5F, 0x4C}
	ps1DESIV  = []byte{0xA8, 0x19, 0xC4, 0xF5, 0xE1, 0x54, 0xE3, 0x0B}

	pspDESKey = []byte{0xDA, 0x39, 0x23, 0xEF, 0x9C, 0x61, 0xB9, 0x30}
	pspDESIV  = []byte{0x2D, 0xEE, 0x89, 0x50, 0x96, 0x91, 0x12, 0xD9}
)

// HMAC-SHA1 keys for the PSP-variant trailer digests.
var (
	pspHMACKey = []byte{0x4D, 0x1B, 0x6B, 0x12, 0x69, 0xDD, 0xD2, 0x2F, 0xAA, 0xE1, 0xF5, 0x42, 0x07, 0xE7, 0x98, 0xB5}
	ps3HMACKey = []byte{0xEF, 0x69, 0x0E, 0xC0, 0xE0, 0xBF, 0xA4, 0x1F, 0x08, 0x45, 0x5B, 0xD0, 0x38, 0xEB, 0x87, 0x62}
)
