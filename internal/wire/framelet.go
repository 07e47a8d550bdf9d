// Package wire implements the Epoxy binary frame codec: an ordered
// sequence of typed, length-prefixed byte segments ("framelets") carried
// over a reliable stream, as defined by the Epoxy wire format.
package wire

import (
	"errors"
	"fmt"
)

// Type is a framelet's tag, drawn from a closed, 16-bit wire enumeration.
type Type uint16

// Framelet types and their little-endian wire codes.
const (
	EpoxyConfig   Type = 0x4743
	EpoxyHeaders  Type = 0x5248
	LayerData     Type = 0x594C
	PayloadData   Type = 0x5444
	ProtocolError Type = 0x5245
)

// String returns the type's name, or its numeric code if unrecognized.
func (t Type) String() string {
	switch t {
	case EpoxyConfig:
		return "EpoxyConfig"
	case EpoxyHeaders:
		return "EpoxyHeaders"
	case LayerData:
		return "LayerData"
	case PayloadData:
		return "PayloadData"
	case ProtocolError:
		return "ProtocolError"
	default:
		return fmt.Sprintf("0x%04X", uint16(t))
	}
}

// IsKnownType reports whether t is one of the closed set of framelet types.
func IsKnownType(t Type) bool {
	switch t {
	case EpoxyConfig, EpoxyHeaders, LayerData, PayloadData, ProtocolError:
		return true
	default:
		return false
	}
}

// maxFrameletLength is the largest legal framelet content length (spec: length in [1, 2^31-1]).
const maxFrameletLength = 1<<31 - 1

var (
	// ErrUnknownFrameletType indicates a framelet type outside the closed enumeration.
	ErrUnknownFrameletType = errors.New("wire: unknown framelet type")

	// ErrEmptyContents indicates a framelet was constructed with no content bytes.
	ErrEmptyContents = errors.New("wire: framelet contents must not be empty")

	// ErrContentsTooLarge indicates a framelet content length outside [1, 2^31-1].
	ErrContentsTooLarge = errors.New("wire: framelet contents too large")
)

// Framelet is an immutable (type, contents) pair. Contents is always
// non-empty and its length always fits in 31 bits.
type Framelet struct {
	typ      Type
	contents []byte
}

// NewFramelet constructs a Framelet, validating the type and contents.
func NewFramelet(t Type, contents []byte) (Framelet, error) {
	if !IsKnownType(t) {
		return Framelet{}, fmt.Errorf("%w: %s", ErrUnknownFrameletType, t)
	}
	if len(contents) == 0 {
		return Framelet{}, fmt.Errorf("%w (type %s)", ErrEmptyContents, t)
	}
	if len(contents) > maxFrameletLength {
		return Framelet{}, fmt.Errorf("%w: %d bytes (type %s)", ErrContentsTooLarge, len(contents), t)
	}
	return Framelet{typ: t, contents: contents}, nil
}

// Type returns the framelet's tag.
func (f Framelet) Type() Type {
	return f.typ
}

// Contents returns the framelet's content bytes. Callers must not mutate
// the returned slice; its backing array may be shared with the frame it
// was parsed from until the caller is done with it (spec §5, resource policy).
func (f Framelet) Contents() []byte {
	return f.contents
}

// Equal reports whether f and o have the same type and byte-identical contents.
func (f Framelet) Equal(o Framelet) bool {
	if f.typ != o.typ || len(f.contents) != len(o.contents) {
		return false
	}
	for i := range f.contents {
		if f.contents[i] != o.contents[i] {
			return false
		}
	}
	return true
}
