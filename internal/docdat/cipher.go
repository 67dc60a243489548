package docdat

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// desBlockSize is the DES cipher block size in bytes.
const desBlockSize = 8

// macBlockSize is the AES block size, which is also the BBMAC group size.
const macBlockSize = 16

// desKeyFor returns the fixed DES key/IV pair for the document type.
func desKeyFor(t DocType) (key, iv []byte, err error) {
	switch t {
	case DocTypePS1:
		return ps1DESKey, ps1DESIV, nil
	case DocTypePSP:
		return pspDESKey, pspDESIV, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedDocType, t)
	}
}

// desEncrypt encrypts data with DES-CBC under the document type's fixed
// key and IV. The input length must be a multiple of 8. The transform is
// deterministic: identical plaintext always yields identical ciphertext,
// which the container round-trip guarantees rely on.
func desEncrypt(t DocType, data []byte) ([]byte, error) {
	return desApply(t, data, true)
}

// desDecrypt is the inverse of desEncrypt.
func desDecrypt(t DocType, data []byte) ([]byte, error) {
	return desApply(t, data, false)
}

func desApply(t DocType, data []byte, encrypt bool) ([]byte, error) {
	key, iv, err := desKeyFor(t)
	if err != nil {
		return nil, err
	}
	if len(data)%desBlockSize != 0 {
		return nil, fmt.Errorf("%w: DES input length %d", ErrUnalignedInput, len(data))
	}

	block, err := des.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("DES cipher setup failed: %w", err)
	}

	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// aesEncryptZeroIV encrypts data with AES-128-CBC under the vault key for
// keyID, using an all-zero IV. Input length must be a multiple of 16.
func aesEncryptZeroIV(keyID int, data []byte) ([]byte, error) {
	return aesApplyZeroIV(keyID, data, true)
}

// aesDecryptZeroIV is the inverse of aesEncryptZeroIV.
func aesDecryptZeroIV(keyID int, data []byte) ([]byte, error) {
	return aesApplyZeroIV(keyID, data, false)
}

func aesApplyZeroIV(keyID int, data []byte, encrypt bool) ([]byte, error) {
	key, err := vaultKey(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: 0x%02X", err, keyID)
	}
	if len(data)%macBlockSize != 0 {
		return nil, fmt.Errorf("%w: AES input length %d", ErrUnalignedInput, len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("AES cipher setup failed: %w", err)
	}

	iv := make([]byte, macBlockSize)
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// padToBlock zero-pads buf up to the next multiple of size, returning a
// fresh slice. A buf already aligned is returned copied but unpadded.
func padToBlock(buf []byte, size int) []byte {
	padded := make([]byte, len(buf)+(-len(buf)%size+size)%size)
	copy(padded, buf)
	return padded
}
