package moduleplayer

import "errors"

// Error kinds surfaced by loaders and the MMCMP unpacker. LoadFromData
// collapses all of these to a bool, per the original C ABI, but the
// Go-native Load entry point (used by cmd/moddump) returns the wrapped
// sentinel so callers can distinguish "not a module" from "alloc failed".
var (
	ErrBadMagic     = errors.New("moduleplayer: unrecognized format signature")
	ErrTruncated    = errors.New("moduleplayer: unexpected end of data")
	ErrInvalid      = errors.New("moduleplayer: field out of range")
	ErrUnsupported  = errors.New("moduleplayer: unsupported module variant")
	ErrAllocFail    = errors.New("moduleplayer: allocation failed")
	ErrBadMMCMP     = errors.New("moduleplayer: corrupt MMCMP container")
	ErrNoSongLoaded = errors.New("moduleplayer: no song loaded")
)
