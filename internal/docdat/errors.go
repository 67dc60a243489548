package docdat

import (
	"errors"
)

var (
	// Key vault / parameter errors (programming or caller errors, fatal)
	ErrUnknownKeyID     = errors.New("unknown key vault identifier")
	ErrInvalidKeyLength = errors.New("key must be exactly 16 bytes")
	ErrInvalidGameID    = errors.New("game id must be 1-15 ASCII letters or digits")

	// Cipher errors
	ErrUnalignedInput = errors.New("cipher input is not block aligned")

	// BBMAC errors
	ErrMACStateCorrupt = errors.New("MAC pending buffer exceeds 16 bytes")
	ErrInvalidMACSize  = errors.New("stored MAC must be exactly 16 bytes")

	// Container errors
	ErrUnsupportedDocType = errors.New("unsupported document type")
	ErrMissingVersionKey  = errors.New("PS1 documents require a 16-byte version key")
	ErrOutputExists       = errors.New("output file already exists")
	ErrNotPS1Container    = errors.New("not a PS1 document container")
)
