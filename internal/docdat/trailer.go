package docdat

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
)

// digestSize is the truncated digest length used in trailers.
const digestSize = 16

// Trailer sizes per document type. Every encrypted block in a container
// (header, index, page) is immediately followed by its trailer.
//
//	PS1: 16-byte stored BBMAC + 16-byte truncated SHA-1       = 32 bytes
//	PSP: 16 zero bytes + 16-byte HMAC(PSP) + 16-byte HMAC(PS3) = 48 bytes
const (
	trailerSizePS1 = 0x20
	trailerSizePSP = 0x30
)

// trailerSize returns the trailer length for the document type.
func trailerSize(t DocType) int {
	if t == DocTypePSP {
		return trailerSizePSP
	}
	return trailerSizePS1
}

// blockDigest computes the integrity digest a trailer carries at offset
// 16: truncated SHA-1 for PS1, truncated HMAC-SHA1 under the PSP key for
// PSP.
func blockDigest(t DocType, data []byte) []byte {
	if t == DocTypePSP {
		mac := hmac.New(sha1.New, pspHMACKey)
		mac.Write(data)
		return mac.Sum(nil)[:digestSize]
	}
	sum := sha1.Sum(data)
	return sum[:digestSize]
}

// ps3Digest is the second keyed digest of the PSP-variant trailer,
// verified by the PS3 firmware consumer.
func ps3Digest(data []byte) []byte {
	mac := hmac.New(sha1.New, ps3HMACKey)
	mac.Write(data)
	return mac.Sum(nil)[:digestSize]
}

// buildTrailer produces the authentication trailer for one encrypted
// block. For PS1 the version key is required to compute the stored BBMAC;
// for PSP it is unused and the MAC field is left zero.
func buildTrailer(t DocType, block, versionKey []byte) ([]byte, error) {
	switch t {
	case DocTypePS1:
		mac, err := GenerateStoredMAC(block, versionKey)
		if err != nil {
			return nil, err
		}
		trailer := make([]byte, 0, trailerSizePS1)
		trailer = append(trailer, mac...)
		trailer = append(trailer, blockDigest(t, block)...)
		return trailer, nil
	case DocTypePSP:
		trailer := make([]byte, digestSize, trailerSizePSP)
		trailer = append(trailer, blockDigest(t, block)...)
		trailer = append(trailer, ps3Digest(block)...)
		return trailer, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDocType, t)
	}
}

// verifyTrailer recomputes the digest over block and compares it against
// the digest field of the trailer. A short trailer never verifies.
func verifyTrailer(t DocType, block, trailer []byte) bool {
	if len(trailer) < 2*digestSize {
		return false
	}
	return bytes.Equal(blockDigest(t, block), trailer[digestSize:2*digestSize])
}
