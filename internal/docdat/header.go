package docdat

import (
	"bytes"
	"encoding/binary"
)

// Container geometry. All multi-byte integers are little-endian unless a
// field says otherwise.
const (
	headerSize = 0x60 // plaintext/encrypted header block
	pageHead   = 0x20 // encrypted per-page head (total length + sub-chunk count)

	// Index block sizes and the position of the PS3 page-count mirror
	// inside them, per size class.
	indexSizeCompact  = 0x31E8
	indexSizeExtended = 0x1F3E8
	ps3CountCompact   = 0x3188
	ps3CountExtended  = 0x1F388

	indexEntryBase   = 0x08 // first page entry, after sentinel + count
	indexEntryStride = 0x80

	// Size-class boundaries.
	compactMaxPages = 99
	maxPages        = 999

	headerMagic   = 0x20434F44 // "DOC " little-endian
	formatVersion = 0x10000

	gameIDOffset = 0x0C
	gameIDField  = 0x10
	sizeFlagOff  = 0x1C

	indexSentinel = 0xFFFFFFFF
)

// pgdPrologue is the fixed 16-byte magic/version prologue of a wrapped
// container.
var pgdPrologue = []byte{0x00, 'P', 'G', 'D', 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// docSignature is the first 12 bytes of a decrypted header: magic plus the
// two version words. A bare image stream (legacy wrapper-less DOCUMENT.DAT)
// starts with the same 12 bytes in the clear.
var docSignature = []byte{'D', 'O', 'C', ' ', 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00}

// DefaultGameID is the identifier written by the original authoring tool.
const DefaultGameID = "DOCMAKERNX"

// validGameID reports whether id fits the zero-padded 16-byte header
// field: 1 to 15 ASCII letters or digits.
func validGameID(id string) bool {
	if len(id) == 0 || len(id) >= gameIDField {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// buildHeader assembles the 0x60-byte plaintext header: magic, version
// words, zero-padded game id and the size-class flag (0 when fewer than
// 100 pages, 1 otherwise).
func buildHeader(gameID string, pageCount int) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0x00:], headerMagic)
	binary.LittleEndian.PutUint32(buf[0x04:], formatVersion)
	binary.LittleEndian.PutUint32(buf[0x08:], formatVersion)
	copy(buf[gameIDOffset:gameIDOffset+gameIDField], gameID)
	if pageCount > compactMaxPages {
		binary.LittleEndian.PutUint32(buf[sizeFlagOff:], 1)
	}
	return buf
}

// indexGeometry returns the index block size and PS3 count offset for a
// size-class flag.
func indexGeometry(sizeFlag uint32) (indexSize, ps3CountOff int) {
	if sizeFlag == 1 {
		return indexSizeExtended, ps3CountExtended
	}
	return indexSizeCompact, ps3CountCompact
}

// indexCapacity is the number of page entries a size class can hold; the
// entry table runs from indexEntryBase to the PS3 count mirror.
func indexCapacity(sizeFlag uint32) int {
	if sizeFlag == 1 {
		return maxPages
	}
	return compactMaxPages
}

// probeHeader decrypts the encrypted header block under each document
// type's key in turn and returns whichever yields the embedded signature,
// along with its size-class flag. ok is false when neither key matches.
func probeHeader(encHeader []byte) (t DocType, sizeFlag uint32, ok bool) {
	for _, cand := range []DocType{DocTypePS1, DocTypePSP} {
		dec, err := desDecrypt(cand, encHeader)
		if err != nil {
			continue
		}
		if bytes.Equal(dec[:len(docSignature)], docSignature) {
			return cand, binary.LittleEndian.Uint32(dec[sizeFlagOff:]), true
		}
	}
	return 0, 0, false
}
