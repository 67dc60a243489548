package docdat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageSkip records one page that failed validation during extraction and
// was skipped. Skips never abort the remaining pages: partial recovery is
// the designed behavior for this format.
type PageSkip struct {
	Page   int // zero-based index into the container's page table
	Reason string
}

// ExtractResult holds the images recovered from one container.
type ExtractResult struct {
	// Type is the detected document type; meaningful only when a wrapped
	// container was parsed (Wrapped is true).
	Type    DocType
	Wrapped bool

	// Images are the recovered page images, in page order.
	Images [][]byte

	// Skipped lists pages dropped by per-page validation failures.
	Skipped []PageSkip
}

// Extract parses a DOCUMENT.DAT byte stream and recovers its page images.
//
// Three input shapes are accepted: a bare image stream (legacy,
// wrapper-less) beginning with the clear document signature, a wrapped
// container beginning with the PGD prologue, and anything else, which
// yields an empty result rather than an error. Structural or integrity
// failures below the header likewise degrade to empty or partial results;
// only programming errors surface as a non-nil error.
func Extract(data []byte) (*ExtractResult, error) {
	res := &ExtractResult{}

	if len(data) >= len(docSignature) && bytes.Equal(data[:len(docSignature)], docSignature) {
		res.Images = copyBlobs(scanAllBlobs(data))
		return res, nil
	}

	if len(data) < 0x90 || !bytes.Equal(data[:len(pgdPrologue)], pgdPrologue) {
		return res, nil
	}

	docType, sizeFlag, ok := probeHeader(data[0x10 : 0x10+headerSize])
	if !ok || sizeFlag > 1 {
		return res, nil
	}
	res.Type = docType
	res.Wrapped = true

	headerEnd := 0x10 + headerSize
	if len(data) < headerEnd+trailerSize(docType) {
		return res, nil
	}
	if !verifyTrailer(docType, data[0x10:headerEnd], data[headerEnd:headerEnd+trailerSize(docType)]) {
		return res, nil
	}

	indexSize, _ := indexGeometry(sizeFlag)
	indexOff := headerEnd + trailerSize(docType)
	indexEnd := indexOff + indexSize
	if len(data) < indexEnd+trailerSize(docType) {
		return res, nil
	}
	if !verifyTrailer(docType, data[indexOff:indexEnd], data[indexEnd:indexEnd+trailerSize(docType)]) {
		return res, nil
	}

	index, err := desDecrypt(docType, data[indexOff:indexEnd])
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(index[0x00:]) != indexSentinel {
		return res, nil
	}

	pageCount := int(binary.LittleEndian.Uint32(index[0x04:]))
	if pageCount > indexCapacity(sizeFlag) {
		return res, nil
	}

	for i := 0; i < pageCount; i++ {
		entry := index[indexEntryBase+i*indexEntryStride:]
		offset := int(binary.LittleEndian.Uint32(entry[0x00:]))
		size := int(binary.LittleEndian.Uint32(entry[0x0C:]))

		img, reason := extractPage(docType, data, offset, size)
		if img == nil {
			res.Skipped = append(res.Skipped, PageSkip{Page: i, Reason: reason})
			continue
		}
		res.Images = append(res.Images, img)
	}
	return res, nil
}

// extractPage validates and decodes one page block, returning the
// recovered image or a nil image with the skip reason.
func extractPage(t DocType, data []byte, offset, size int) ([]byte, string) {
	tsz := trailerSize(t)
	if offset < 0 || size < pageHead+tsz || offset+size > len(data) {
		return nil, "declared page range out of bounds"
	}

	block := data[offset : offset+size-tsz]
	trailer := data[offset+size-tsz : offset+size]
	if !verifyTrailer(t, block, trailer) {
		return nil, "trailer digest mismatch"
	}

	head, err := desDecrypt(t, block[:pageHead])
	if err != nil {
		return nil, err.Error()
	}
	declaredLen := int(binary.LittleEndian.Uint32(head[0x00:]))
	subChunks := int(binary.LittleEndian.Uint32(head[0x08:]))

	if declaredLen != size {
		return nil, "page head length disagrees with index"
	}

	payloadOff := pageHead + subChunks*8
	if payloadOff > len(block) {
		return nil, "sub-chunk table extends past page block"
	}

	// Working copy: sub-chunk decryption mutates ranges in place, and the
	// returned image must not alias the container buffer.
	payload := append([]byte(nil), block[payloadOff:]...)
	if len(payload) < pngMinSize {
		return nil, "payload shorter than minimum image size"
	}

	if subChunks > 0 {
		if err := decryptSubChunks(t, block[pageHead:payloadOff], payload); err != nil {
			return nil, err.Error()
		}
	}

	blob, ok := NewBlobScanner(payload).Next()
	if !ok || len(blob) < pngMinSize {
		return nil, "no image boundary found in payload"
	}
	return blob[:len(blob):len(blob)], ""
}

// decryptSubChunks decrypts the cipher-wrapped (offset,size) table and
// then surgically decrypts each declared sub-range of the payload in
// place. Most of a page is stored in the clear; only these designated
// ranges are re-encrypted.
func decryptSubChunks(t DocType, encTable, payload []byte) error {
	table, err := desDecrypt(t, encTable)
	if err != nil {
		return err
	}

	for j := 0; j*8 < len(table); j++ {
		// Table integers are big-endian, unlike the rest of the format.
		off := int(binary.BigEndian.Uint32(table[j*8:]))
		size := int(binary.BigEndian.Uint32(table[j*8+4:]))
		if off < 0 || size < 0 || off+size > len(payload) {
			return fmt.Errorf("sub-chunk %d range out of bounds", j)
		}

		dec, err := desDecrypt(t, payload[off:off+size])
		if err != nil {
			return fmt.Errorf("sub-chunk %d: %w", j, err)
		}
		copy(payload[off:off+size], dec)
	}
	return nil
}

// RecoverContainerInstallID recovers the 16-byte install/version key from
// a wrapped PS1 container, using the header block and the stored BBMAC in
// its trailer. PSP containers carry no MAC and are rejected.
func RecoverContainerInstallID(data []byte) ([]byte, error) {
	if len(data) < 0x80 || !bytes.Equal(data[:len(pgdPrologue)], pgdPrologue) {
		return nil, fmt.Errorf("%w: missing container prologue", ErrNotPS1Container)
	}

	docType, _, ok := probeHeader(data[0x10 : 0x10+headerSize])
	if !ok {
		return nil, fmt.Errorf("%w: header did not decrypt under any known key", ErrNotPS1Container)
	}
	if docType != DocTypePS1 {
		return nil, fmt.Errorf("%w: %s documents store no MAC", ErrNotPS1Container, docType)
	}

	return RecoverInstallID(data[0x10:0x80])
}

// copyBlobs detaches scanner results from their backing buffer.
func copyBlobs(blobs [][]byte) [][]byte {
	out := make([][]byte, len(blobs))
	for i, b := range blobs {
		out[i] = append([]byte(nil), b...)
	}
	return out
}
