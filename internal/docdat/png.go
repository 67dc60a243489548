package docdat

import (
	"bytes"
	"encoding/binary"
)

// pngSignature is the fixed 8-byte PNG file signature.
var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// pngMinSize is the smallest byte count a structurally valid PNG can have
// (signature + IHDR + minimal IDAT + IEND).
const pngMinSize = 0x43

// BlobScanner walks a byte buffer yielding self-delimited PNG blobs: a
// signature followed by length-prefixed chunks up to and including IEND.
// A candidate whose chunk structure runs past the end of the buffer is
// abandoned and scanning resumes one byte after its signature, so a
// corrupt blob never hides later valid ones.
type BlobScanner struct {
	data []byte
	pos  int
}

// NewBlobScanner returns a scanner positioned at the start of data. The
// returned blobs are sub-slices of data; callers that mutate them must
// copy first.
func NewBlobScanner(data []byte) *BlobScanner {
	return &BlobScanner{data: data}
}

// Next returns the next complete blob, or ok=false when the buffer is
// exhausted.
func (s *BlobScanner) Next() ([]byte, bool) {
	n := len(s.data)
	for s.pos < n {
		idx := bytes.Index(s.data[s.pos:], pngSignature)
		if idx < 0 {
			s.pos = n
			return nil, false
		}
		start := s.pos + idx

		// Chunk walk: 4-byte big-endian length, 4-byte type, data, CRC.
		p := start + len(pngSignature)
		found := false
		for p+8 <= n {
			length := int(binary.BigEndian.Uint32(s.data[p : p+4]))
			ctype := s.data[p+4 : p+8]
			p += 8
			if p+length+4 > n {
				break // truncated chunk, abandon this candidate
			}
			p += length + 4
			if bytes.Equal(ctype, []byte("IEND")) {
				found = true
				break
			}
		}

		if found {
			s.pos = p
			return s.data[start:p], true
		}
		s.pos = start + 1
	}
	return nil, false
}

// scanAllBlobs collects every blob in data, in order.
func scanAllBlobs(data []byte) [][]byte {
	var blobs [][]byte
	sc := NewBlobScanner(data)
	for {
		blob, ok := sc.Next()
		if !ok {
			return blobs
		}
		blobs = append(blobs, blob)
	}
}
