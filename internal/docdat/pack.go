package docdat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/deploymenttheory/go-docdat/internal/common/fsutil"
)

// Output artifact names, fixed by the firmware consumers.
const (
	ContainerFileName = "DOCUMENT.DAT"
	KeyFileName       = "KEYS.BIN"
)

// PackOptions are the inputs to a container build.
type PackOptions struct {
	// Type selects the container variant.
	Type DocType

	// VersionKey is the 16-byte install/version key embedded into every
	// BBMAC trailer. Required for DocTypePS1; unused for DocTypePSP.
	VersionKey []byte

	// GameID is the fixed-width ASCII identifier written into the header.
	// Empty selects DefaultGameID.
	GameID string

	// Pages are the rasterized page images, in display order. Each is
	// zero-padded to the cipher block size during packing.
	Pages [][]byte
}

// PackResult is a built container plus its companion artifacts.
type PackResult struct {
	// Data is the complete DOCUMENT.DAT byte stream.
	Data []byte

	// KeyData is the KEYS.BIN content (the version key); nil for PSP
	// documents, which need no companion key.
	KeyData []byte

	// PageCount is the number of pages written.
	PageCount int

	// Truncated is how many input pages were dropped by the 999-page
	// hard cap. Non-zero truncation is a warning, not a failure.
	Truncated int
}

// Pack assembles a DOCUMENT.DAT container from rasterized page images.
//
// The container is header block, index block and one block per page, each
// DES-encrypted where the format demands and each followed by its
// authentication trailer. Offsets recorded in the index equal the running
// write position at which each page block begins, so the output is
// self-consistent by construction. Packing is deterministic: identical
// inputs produce byte-identical containers.
func Pack(opts PackOptions) (*PackResult, error) {
	if !opts.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDocType, opts.Type)
	}

	gameID := opts.GameID
	if gameID == "" {
		gameID = DefaultGameID
	}
	if !validGameID(gameID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGameID, gameID)
	}

	if opts.Type == DocTypePS1 {
		if len(opts.VersionKey) != macBlockSize {
			return nil, fmt.Errorf("%w: got %d bytes", ErrMissingVersionKey, len(opts.VersionKey))
		}
	} else if opts.VersionKey != nil && len(opts.VersionKey) != macBlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(opts.VersionKey))
	}

	inputs := opts.Pages
	truncated := 0
	if len(inputs) > maxPages {
		truncated = len(inputs) - maxPages
		inputs = inputs[:maxPages]
	}

	pages := make([][]byte, len(inputs))
	for i, p := range inputs {
		pages[i] = padToBlock(p, macBlockSize)
	}

	header := buildHeader(gameID, len(pages))
	encHeader, err := desEncrypt(opts.Type, header)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(pgdPrologue)
	if err := writeBlock(&out, opts.Type, encHeader, opts.VersionKey); err != nil {
		return nil, err
	}

	index := buildIndex(opts.Type, pages, out.Len())
	encIndex, err := desEncrypt(opts.Type, index)
	if err != nil {
		return nil, err
	}
	if err := writeBlock(&out, opts.Type, encIndex, opts.VersionKey); err != nil {
		return nil, err
	}

	// Reserved gap between the index trailer and the first page block.
	out.Write(make([]byte, 8))

	for _, page := range pages {
		block, err := buildPageBlock(opts.Type, page)
		if err != nil {
			return nil, err
		}
		if err := writeBlock(&out, opts.Type, block, opts.VersionKey); err != nil {
			return nil, err
		}
	}

	result := &PackResult{
		Data:      out.Bytes(),
		PageCount: len(pages),
		Truncated: truncated,
	}
	if opts.Type == DocTypePS1 {
		result.KeyData = append([]byte(nil), opts.VersionKey...)
	}
	return result, nil
}

// writeBlock appends an encrypted block and its trailer to the container.
func writeBlock(out *bytes.Buffer, t DocType, block, versionKey []byte) error {
	trailer, err := buildTrailer(t, block, versionKey)
	if err != nil {
		return err
	}
	out.Write(block)
	out.Write(trailer)
	return nil
}

// buildIndex assembles the plaintext index block. Each page entry carries
// the page block's absolute offset and total encoded length twice, at two
// positions inside the 0x80-byte entry, mirroring the PSP and PS3
// consumers' layouts. headerEnd is the container length after the header
// block and its trailer.
func buildIndex(t DocType, pages [][]byte, headerEnd int) []byte {
	var sizeFlag uint32
	if len(pages) > compactMaxPages {
		sizeFlag = 1
	}
	indexSize, ps3CountOff := indexGeometry(sizeFlag)

	index := make([]byte, indexSize)
	binary.LittleEndian.PutUint32(index[0x00:], indexSentinel)
	binary.LittleEndian.PutUint32(index[0x04:], uint32(len(pages)))
	binary.LittleEndian.PutUint32(index[ps3CountOff:], uint32(len(pages)))

	// First page block starts after the index trailer and the 8-byte gap.
	pageOffset := headerEnd + indexSize + trailerSize(t) + 0x08

	for i, page := range pages {
		pageLen := pageHead + len(page) + trailerSize(t)
		entry := index[indexEntryBase+i*indexEntryStride:]
		binary.LittleEndian.PutUint32(entry[0x00:], uint32(pageOffset))
		binary.LittleEndian.PutUint32(entry[0x0C:], uint32(pageLen))
		binary.LittleEndian.PutUint32(entry[0x10:], uint32(pageOffset))
		binary.LittleEndian.PutUint32(entry[0x1C:], uint32(pageLen))
		pageOffset += pageLen
	}
	return index
}

// buildPageBlock prefixes one zero-padded page payload with its encrypted
// page head: the block's total encoded length and a zero sub-chunk count
// (the authoring path never re-encrypts payload sub-ranges).
func buildPageBlock(t DocType, page []byte) ([]byte, error) {
	head := make([]byte, pageHead)
	binary.LittleEndian.PutUint32(head[0x00:], uint32(pageHead+len(page)+trailerSize(t)))

	encHead, err := desEncrypt(t, head)
	if err != nil {
		return nil, err
	}

	block := make([]byte, 0, len(encHead)+len(page))
	block = append(block, encHead...)
	block = append(block, page...)
	return block, nil
}

// WriteFiles persists the container (and KEYS.BIN for PS1 documents) into
// dir, creating it if needed. An existing DOCUMENT.DAT, or an existing
// KEYS.BIN holding a different valid key, is only replaced when force is
// set. Returns the paths written.
func (r *PackResult) WriteFiles(dir string, force bool) ([]string, error) {
	if err := fsutil.CreateDirIfNotExists(dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	datPath := filepath.Join(dir, ContainerFileName)
	if fsutil.FileExists(datPath) && !force {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, datPath)
	}
	if err := fsutil.WriteFile(datPath, r.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write container: %w", err)
	}
	written := []string{datPath}

	if r.KeyData == nil {
		return written, nil
	}

	keyPath := filepath.Join(dir, KeyFileName)
	if fsutil.FileExists(keyPath) {
		existing, err := fsutil.ReadFile(keyPath)
		if err == nil && bytes.Equal(existing, r.KeyData) {
			return written, nil // key file already holds this key
		}
		if err == nil && len(existing) == macBlockSize && !force {
			return nil, fmt.Errorf("%w: %s holds a different key", ErrOutputExists, keyPath)
		}
	}
	if err := fsutil.WriteFile(keyPath, r.KeyData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return append(written, keyPath), nil
}
