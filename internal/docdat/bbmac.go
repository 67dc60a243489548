package docdat

import (
	"fmt"
)

// maxMACStep bounds how many bytes a single chained encryption step may
// process, matching the firmware's working-set limit.
const maxMACStep = 0x800

// MACContext is the streaming state of one BBMAC computation: the rolling
// chain value plus up to one block of bytes not yet drained through the
// chained encryption step.
//
// A context must not be shared between concurrent computations. Init,
// Final and RecoverKey all leave the context zeroed, so a context can be
// reused sequentially.
type MACContext struct {
	chain  [macBlockSize]byte
	pad    [macBlockSize]byte
	padLen int
}

// NewMACContext returns a zeroed context ready for Update calls.
func NewMACContext() *MACContext {
	return &MACContext{}
}

// Init resets the context to its zeroed starting state.
func (m *MACContext) Init() {
	m.chain = [macBlockSize]byte{}
	m.pad = [macBlockSize]byte{}
	m.padLen = 0
}

// chainStep drains one group of complete 16-byte blocks: the chain value
// is XORed into the first block, the whole group is encrypted under the
// chaining key, and the last ciphertext block becomes the new chain value.
func (m *MACContext) chainStep(group []byte) error {
	b := make([]byte, len(group))
	copy(b, group)
	for i := 0; i < macBlockSize; i++ {
		b[i] ^= m.chain[i]
	}

	ct, err := aesEncryptZeroIV(keyIDMACChain, b)
	if err != nil {
		return err
	}
	copy(m.chain[:], ct[len(ct)-macBlockSize:])
	return nil
}

// Update appends buf to the computation. Whenever the pending bytes exceed
// one block, complete 16-byte groups are drained through chainStep in
// steps of at most 2048 bytes; the remainder stays buffered. At least one
// byte is always left pending so Final has a block to pad or XOR.
func (m *MACContext) Update(buf []byte) error {
	if m.padLen > macBlockSize {
		return fmt.Errorf("%w: %d", ErrMACStateCorrupt, m.padLen)
	}

	if m.padLen+len(buf) <= macBlockSize {
		copy(m.pad[m.padLen:], buf)
		m.padLen += len(buf)
		return nil
	}

	stream := make([]byte, m.padLen+len(buf))
	copy(stream, m.pad[:m.padLen])
	copy(stream[m.padLen:], buf)

	rem := len(stream) & 0x0F
	if rem == 0 {
		rem = macBlockSize
	}

	fullLen := len(stream) - rem
	copy(m.pad[:], stream[fullLen:])
	m.padLen = rem

	for p := 0; p < fullLen; {
		n := fullLen - p
		if n > maxMACStep {
			n = maxMACStep
		}
		if err := m.chainStep(stream[p : p+n]); err != nil {
			return err
		}
		p += n
	}
	return nil
}

// Final produces the 16-byte tag over everything accumulated so far and
// resets the context.
//
// The two subkeys are the standard CMAC pair: each is the carry-propagating
// left shift of the previous value with 0x87 folded into the last byte when
// the top bit carries out. The second subkey is selected (and the final
// block padded with 0x80 + zeros) only when the accumulated length was not
// an exact multiple of 16.
//
// If versionKey is non-nil it must be exactly 16 bytes; it is XORed into
// the base tag and the result re-encrypted under the chaining key.
func (m *MACContext) Final(versionKey []byte) ([]byte, error) {
	if m.padLen > macBlockSize {
		return nil, fmt.Errorf("%w: %d", ErrMACStateCorrupt, m.padLen)
	}
	if versionKey != nil && len(versionKey) != macBlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(versionKey))
	}

	l, err := aesEncryptZeroIV(keyIDMACChain, make([]byte, macBlockSize))
	if err != nil {
		return nil, err
	}
	k1 := doubleSubkey(l)
	k2 := doubleSubkey(k1)

	block := make([]byte, macBlockSize)
	copy(block, m.pad[:m.padLen])

	subkey := k1
	if m.padLen < macBlockSize {
		block[m.padLen] = 0x80
		subkey = k2
	}
	for i := 0; i < macBlockSize; i++ {
		block[i] ^= subkey[i]
	}

	if err := m.chainStep(block); err != nil {
		return nil, err
	}

	finalKey, err := vaultKey(keyIDMACFinal)
	if err != nil {
		return nil, err
	}

	tag := make([]byte, macBlockSize)
	for i := 0; i < macBlockSize; i++ {
		tag[i] = m.chain[i] ^ finalKey[i]
	}

	if versionKey != nil {
		for i := 0; i < macBlockSize; i++ {
			tag[i] ^= versionKey[i]
		}
		tag, err = aesEncryptZeroIV(keyIDMACChain, tag)
		if err != nil {
			return nil, err
		}
	}

	m.Init()
	return tag, nil
}

// RecoverKey reverses the version-key embedding: given the stored tag for
// the bytes already accumulated in the context, it recovers the 16-byte
// version key that was mixed in at finalization. The storage layer is
// removed first, then the authentication layer, mirroring the forward
// construction. The context is consumed (reset) in the process.
func (m *MACContext) RecoverKey(storedMAC []byte) ([]byte, error) {
	if len(storedMAC) != macBlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMACSize, len(storedMAC))
	}

	base, err := m.Final(nil)
	if err != nil {
		return nil, err
	}

	dec, err := aesDecryptZeroIV(keyIDMACStore, storedMAC)
	if err != nil {
		return nil, err
	}
	dec, err = aesDecryptZeroIV(keyIDMACChain, dec)
	if err != nil {
		return nil, err
	}

	key := make([]byte, macBlockSize)
	for i := 0; i < macBlockSize; i++ {
		key[i] = base[i] ^ dec[i]
	}
	return key, nil
}

// doubleSubkey is the CMAC doubling step over GF(2^128): a one-bit left
// shift of the block with the reduction polynomial constant 0x87 XORed
// into the last byte when the top bit carries out.
func doubleSubkey(block []byte) []byte {
	out := make([]byte, macBlockSize)
	carry := byte(0)
	for i := macBlockSize - 1; i >= 0; i-- {
		v := block[i]
		out[i] = (v << 1) | carry
		carry = v >> 7
	}
	if carry != 0 {
		out[macBlockSize-1] ^= 0x87
	}
	return out
}

// GenerateMAC computes the BBMAC tag over buf with the version key
// embedded.
func GenerateMAC(buf, versionKey []byte) ([]byte, error) {
	if len(versionKey) != macBlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(versionKey))
	}
	m := NewMACContext()
	if err := m.Update(buf); err != nil {
		return nil, err
	}
	return m.Final(versionKey)
}

// GenerateStoredMAC computes the BBMAC tag over buf and applies the
// storage-confidentiality layer, producing the form written into
// container trailers.
func GenerateStoredMAC(buf, versionKey []byte) ([]byte, error) {
	tag, err := GenerateMAC(buf, versionKey)
	if err != nil {
		return nil, err
	}
	return aesEncryptZeroIV(keyIDMACStore, tag)
}

// RecoverInstallID recovers the console install key from a 0x70-byte
// region consisting of a 0x60-byte covered buffer followed by its stored
// 16-byte BBMAC. In a PS1 container this region is the encrypted header
// and the MAC field of its trailer.
func RecoverInstallID(region []byte) ([]byte, error) {
	if len(region) != 0x70 {
		return nil, fmt.Errorf("%w: region must be 0x70 bytes, got %d", ErrInvalidMACSize, len(region))
	}
	m := NewMACContext()
	if err := m.Update(region[:0x60]); err != nil {
		return nil, err
	}
	return m.RecoverKey(region[0x60:0x70])
}
