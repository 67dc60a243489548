package docdat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var testKey = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

func testPages(n int) [][]byte {
	pages := make([][]byte, n)
	for i := range pages {
		// Vary the sizes so most pages need zero padding.
		pages[i] = makeTestPNG(100 + i*3)
	}
	return pages
}

func TestPackExtractRoundTrip(t *testing.T) {
	for _, docType := range []DocType{DocTypePS1, DocTypePSP} {
		t.Run(docType.String(), func(t *testing.T) {
			pages := testPages(5)
			result, err := Pack(PackOptions{Type: docType, VersionKey: testKey, Pages: pages})
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}

			extracted, err := Extract(result.Data)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if !extracted.Wrapped || extracted.Type != docType {
				t.Errorf("detected type %v (wrapped=%v), want %v", extracted.Type, extracted.Wrapped, docType)
			}
			if len(extracted.Skipped) != 0 {
				t.Errorf("unexpected skips: %v", extracted.Skipped)
			}
			if len(extracted.Images) != len(pages) {
				t.Fatalf("recovered %d images, want %d", len(extracted.Images), len(pages))
			}
			for i := range pages {
				if !bytes.Equal(extracted.Images[i], pages[i]) {
					t.Errorf("page %d differs after round trip", i)
				}
			}
		})
	}
}

func TestPackDeterminism(t *testing.T) {
	pages := testPages(3)
	a, err := Pack(PackOptions{Type: DocTypePS1, VersionKey: testKey, Pages: pages})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	b, err := Pack(PackOptions{Type: DocTypePS1, VersionKey: testKey, Pages: pages})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("identical inputs produced different containers")
	}
}

func TestPackParameterValidation(t *testing.T) {
	pages := testPages(1)

	if _, err := Pack(PackOptions{Type: DocType(7), VersionKey: testKey, Pages: pages}); !errors.Is(err, ErrUnsupportedDocType) {
		t.Errorf("bad type: got %v, want ErrUnsupportedDocType", err)
	}
	if _, err := Pack(PackOptions{Type: DocTypePS1, Pages: pages}); !errors.Is(err, ErrMissingVersionKey) {
		t.Errorf("missing PS1 key: got %v, want ErrMissingVersionKey", err)
	}
	if _, err := Pack(PackOptions{Type: DocTypePSP, VersionKey: make([]byte, 5), Pages: pages}); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("short key: got %v, want ErrInvalidKeyLength", err)
	}
	if _, err := Pack(PackOptions{Type: DocTypePSP, GameID: "HAS SPACES", Pages: pages}); !errors.Is(err, ErrInvalidGameID) {
		t.Errorf("bad game id: got %v, want ErrInvalidGameID", err)
	}
	if _, err := Pack(PackOptions{Type: DocTypePSP, GameID: "WAYTOOLONGGAMEID", Pages: pages}); !errors.Is(err, ErrInvalidGameID) {
		t.Errorf("long game id: got %v, want ErrInvalidGameID", err)
	}
}

// expectedContainerSize computes the container length from its geometry.
func expectedContainerSize(t DocType, indexSize int, pages [][]byte) int {
	size := len(pgdPrologue) + headerSize + trailerSize(t) + indexSize + trailerSize(t) + 8
	for _, p := range pages {
		size += pageHead + len(padToBlock(p, macBlockSize)) + trailerSize(t)
	}
	return size
}

// Packing 99 pages selects the compact index; 100 selects the extended one.
func TestIndexGeometryBoundary(t *testing.T) {
	compact := testPages(99)
	result, err := Pack(PackOptions{Type: DocTypePSP, Pages: compact})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if want := expectedContainerSize(DocTypePSP, indexSizeCompact, compact); len(result.Data) != want {
		t.Errorf("99 pages: container is %d bytes, want %d (compact index)", len(result.Data), want)
	}

	extended := testPages(100)
	result, err = Pack(PackOptions{Type: DocTypePSP, Pages: extended})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if want := expectedContainerSize(DocTypePSP, indexSizeExtended, extended); len(result.Data) != want {
		t.Errorf("100 pages: container is %d bytes, want %d (extended index)", len(result.Data), want)
	}

	// The extended geometry must round trip too.
	extracted, err := Extract(result.Data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(extracted.Images) != 100 {
		t.Errorf("recovered %d images, want 100", len(extracted.Images))
	}
}

func TestPageCapTruncation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1200-page pack in short mode")
	}

	pages := make([][]byte, 1200)
	page := makeTestPNG(16)
	for i := range pages {
		pages[i] = page
	}

	result, err := Pack(PackOptions{Type: DocTypePSP, Pages: pages})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if result.PageCount != 999 {
		t.Errorf("wrote %d pages, want 999", result.PageCount)
	}
	if result.Truncated != 201 {
		t.Errorf("reported %d truncated pages, want 201", result.Truncated)
	}

	extracted, err := Extract(result.Data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(extracted.Images) != 999 {
		t.Errorf("recovered %d images, want 999", len(extracted.Images))
	}
}

// Flipping one bit in a page's payload must skip that page and leave all
// others recoverable.
func TestTamperIsolation(t *testing.T) {
	for _, docType := range []DocType{DocTypePS1, DocTypePSP} {
		t.Run(docType.String(), func(t *testing.T) {
			pages := testPages(3)
			result, err := Pack(PackOptions{Type: docType, VersionKey: testKey, Pages: pages})
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}

			// Offset of the second page's payload.
			tsz := trailerSize(docType)
			firstPage := len(pgdPrologue) + headerSize + tsz + indexSizeCompact + tsz + 8
			page0Len := pageHead + len(padToBlock(pages[0], macBlockSize)) + tsz
			target := firstPage + page0Len + pageHead + 40

			data := append([]byte(nil), result.Data...)
			data[target] ^= 0x01

			extracted, err := Extract(data)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if len(extracted.Images) != 2 {
				t.Fatalf("recovered %d images, want 2", len(extracted.Images))
			}
			if len(extracted.Skipped) != 1 || extracted.Skipped[0].Page != 1 {
				t.Fatalf("expected page 1 to be skipped, got %v", extracted.Skipped)
			}
			if !bytes.Equal(extracted.Images[0], pages[0]) || !bytes.Equal(extracted.Images[1], pages[2]) {
				t.Error("surviving pages differ from originals")
			}
		})
	}
}

func TestExtractUnrecognizedInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":        {},
		"short":        {0x00, 0x50},
		"garbage":      bytes.Repeat([]byte{0xAB}, 0x200),
		"half mangled": append(append([]byte(nil), pgdPrologue...), bytes.Repeat([]byte{0x00}, 0x300)...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := Extract(data)
			if err != nil {
				t.Fatalf("Extract returned error: %v", err)
			}
			if len(result.Images) != 0 {
				t.Errorf("recovered %d images from unrecognized input", len(result.Images))
			}
		})
	}
}

func TestExtractHeaderTamperYieldsEmpty(t *testing.T) {
	result, err := Pack(PackOptions{Type: DocTypePSP, Pages: testPages(2)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	// Damage the header block; its trailer check must fail closed.
	data := append([]byte(nil), result.Data...)
	data[0x10+0x20] ^= 0xFF

	extracted, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(extracted.Images) != 0 {
		t.Errorf("recovered %d images from a container with a tampered header", len(extracted.Images))
	}
}

// A legacy wrapper-less stream is just the clear document signature
// followed by raw image blobs.
func TestExtractLegacyRawStream(t *testing.T) {
	pages := testPages(3)

	var stream bytes.Buffer
	stream.Write(docSignature)
	stream.Write(make([]byte, 0x20)) // filler between signature and images
	for _, p := range pages {
		stream.Write(p)
		stream.Write(make([]byte, 11)) // inter-image padding
	}

	extracted, err := Extract(stream.Bytes())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if extracted.Wrapped {
		t.Error("raw stream misdetected as wrapped container")
	}
	if len(extracted.Images) != len(pages) {
		t.Fatalf("recovered %d images, want %d", len(extracted.Images), len(pages))
	}
	for i := range pages {
		if !bytes.Equal(extracted.Images[i], pages[i]) {
			t.Errorf("image %d differs", i)
		}
	}
}

func TestRecoverContainerInstallID(t *testing.T) {
	result, err := Pack(PackOptions{Type: DocTypePS1, VersionKey: testKey, Pages: testPages(1)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	key, err := RecoverContainerInstallID(result.Data)
	if err != nil {
		t.Fatalf("RecoverContainerInstallID failed: %v", err)
	}
	if !bytes.Equal(key, testKey) {
		t.Errorf("recovered key mismatch:\ngot  %x\nwant %x", key, testKey)
	}

	// PSP containers store no MAC; recovery must be rejected.
	psp, err := Pack(PackOptions{Type: DocTypePSP, Pages: testPages(1)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if _, err := RecoverContainerInstallID(psp.Data); !errors.Is(err, ErrNotPS1Container) {
		t.Errorf("PSP container: got %v, want ErrNotPS1Container", err)
	}
}

// A page whose head declares re-encrypted sub-chunks gets exactly those
// payload ranges decrypted and nothing else.
func TestExtractPageWithSubChunks(t *testing.T) {
	docType := DocTypePSP
	png := makeTestPNG(200)
	payload := padToBlock(png, macBlockSize)

	// Re-encrypt two disjoint 16-byte ranges of the payload.
	type chunk struct{ off, size int }
	chunks := []chunk{{16, 16}, {64, 32}}
	for _, c := range chunks {
		enc, err := desEncrypt(docType, payload[c.off:c.off+c.size])
		if err != nil {
			t.Fatalf("chunk encrypt failed: %v", err)
		}
		copy(payload[c.off:c.off+c.size], enc)
	}

	// Sub-chunk table integers are big-endian.
	table := make([]byte, len(chunks)*8)
	for j, c := range chunks {
		binary.BigEndian.PutUint32(table[j*8:], uint32(c.off))
		binary.BigEndian.PutUint32(table[j*8+4:], uint32(c.size))
	}
	encTable, err := desEncrypt(docType, table)
	if err != nil {
		t.Fatalf("table encrypt failed: %v", err)
	}

	totalLen := pageHead + len(encTable) + len(payload) + trailerSize(docType)
	head := make([]byte, pageHead)
	binary.LittleEndian.PutUint32(head[0x00:], uint32(totalLen))
	binary.LittleEndian.PutUint32(head[0x08:], uint32(len(chunks)))
	encHead, err := desEncrypt(docType, head)
	if err != nil {
		t.Fatalf("head encrypt failed: %v", err)
	}

	block := append(append(encHead, encTable...), payload...)
	trailer, err := buildTrailer(docType, block, nil)
	if err != nil {
		t.Fatalf("buildTrailer failed: %v", err)
	}
	data := append(block, trailer...)

	img, reason := extractPage(docType, data, 0, len(data))
	if img == nil {
		t.Fatalf("extractPage skipped the page: %s", reason)
	}
	if !bytes.Equal(img, png) {
		t.Error("sub-chunk decryption did not reconstruct the original image")
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	result, err := Pack(PackOptions{Type: DocTypePS1, VersionKey: testKey, Pages: testPages(1)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	written, err := result.WriteFiles(dir, false)
	if err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("wrote %d files, want DOCUMENT.DAT and KEYS.BIN", len(written))
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, ContainerFileName))
	if err != nil {
		t.Fatalf("failed to read container back: %v", err)
	}
	if !bytes.Equal(onDisk, result.Data) {
		t.Error("persisted container differs from packed bytes")
	}
	keyOnDisk, err := os.ReadFile(filepath.Join(dir, KeyFileName))
	if err != nil {
		t.Fatalf("failed to read key file back: %v", err)
	}
	if !bytes.Equal(keyOnDisk, testKey) {
		t.Error("persisted key differs from the version key")
	}

	// Existing container refuses overwrite without force; the key file is
	// untouched since it already holds the same key.
	if _, err := result.WriteFiles(dir, false); !errors.Is(err, ErrOutputExists) {
		t.Errorf("re-write without force: got %v, want ErrOutputExists", err)
	}
	if _, err := result.WriteFiles(dir, true); err != nil {
		t.Errorf("re-write with force failed: %v", err)
	}

	// A different existing key requires force.
	other, err := Pack(PackOptions{Type: DocTypePS1, VersionKey: bytes.Repeat([]byte{0x77}, 16), Pages: testPages(1)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if _, err := other.WriteFiles(dir, true); err != nil {
		t.Fatalf("forced write over a different key failed: %v", err)
	}
}
