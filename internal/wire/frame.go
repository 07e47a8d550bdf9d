package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFramelets is the largest legal framelet count in a single frame
// (spec: cardinality in [1, 65535]).
const maxFramelets = 65535

var (
	// ErrEmptyFrame indicates an attempt to write a frame with no framelets.
	ErrEmptyFrame = errors.New("wire: frame has no framelets")

	// ErrTooManyFramelets indicates an attempt to append beyond the 65535 cap.
	ErrTooManyFramelets = errors.New("wire: frame already has the maximum number of framelets")

	// ErrNilSink indicates a nil io.Writer was passed to WriteFrame.
	ErrNilSink = errors.New("wire: nil output sink")

	// ErrZeroFramelets is a protocol error: the peer announced a frame with count = 0.
	ErrZeroFramelets = errors.New("wire: frame declares zero framelets")

	// ErrTruncatedFrame is a protocol error: the stream ended before a frame finished parsing.
	ErrTruncatedFrame = errors.New("wire: stream ended inside a frame")
)

// Frame is an ordered sequence of Framelets, with cardinality in [1, 65535]
// once written to the wire. A zero-value Frame is empty and may only be
// appended to, never written.
type Frame struct {
	framelets []Framelet
}

// NewFrame builds a Frame from an ordered list of Framelets. An empty frame
// is not rejected here (spec: "construction may start empty"); WriteFrame
// enforces the non-empty requirement at write time.
func NewFrame(framelets ...Framelet) (Frame, error) {
	if len(framelets) > maxFramelets {
		return Frame{}, fmt.Errorf("%w: %d", ErrTooManyFramelets, len(framelets))
	}
	f := Frame{framelets: append([]Framelet(nil), framelets...)}
	return f, nil
}

// Append adds a framelet to the end of the frame, failing once the frame
// already holds the maximum of 65535 framelets.
func (f *Frame) Append(fl Framelet) error {
	if len(f.framelets) >= maxFramelets {
		return ErrTooManyFramelets
	}
	f.framelets = append(f.framelets, fl)
	return nil
}

// Len returns the number of framelets currently in the frame.
func (f Frame) Len() int {
	return len(f.framelets)
}

// At returns the framelet at index i.
func (f Frame) At(i int) Framelet {
	return f.framelets[i]
}

// Framelets returns the frame's framelets in wire order. Callers must not
// mutate the returned slice.
func (f Frame) Framelets() []Framelet {
	return f.framelets
}

// Equal reports whether f and o have the same framelets, in the same order.
func (f Frame) Equal(o Frame) bool {
	if len(f.framelets) != len(o.framelets) {
		return false
	}
	for i := range f.framelets {
		if !f.framelets[i].Equal(o.framelets[i]) {
			return false
		}
	}
	return true
}

// First returns the first framelet of the given type in the frame, if any.
func (f Frame) First(t Type) (Framelet, bool) {
	for _, fl := range f.framelets {
		if fl.Type() == t {
			return fl, true
		}
	}
	return Framelet{}, false
}

// WriteFrame serializes f onto w as:
//
//	count:u16 (type:u16 length:u32 content:byte[length])*
//
// all little-endian, with no padding. It refuses an empty frame and a nil
// sink. Fields are written to w as they are produced, so a write error
// partway through leaves the bytes already written on w.
func WriteFrame(w io.Writer, f Frame) error {
	if w == nil {
		return ErrNilSink
	}
	if len(f.framelets) == 0 {
		return ErrEmptyFrame
	}
	if len(f.framelets) > maxFramelets {
		return fmt.Errorf("%w: %d", ErrTooManyFramelets, len(f.framelets))
	}

	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[:2], uint16(len(f.framelets)))
	if _, err := w.Write(hdr[:2]); err != nil {
		return fmt.Errorf("wire: failed to write framelet count: %w", err)
	}

	for _, fl := range f.framelets {
		binary.LittleEndian.PutUint16(hdr[:2], uint16(fl.typ))
		binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(fl.contents)))
		if _, err := w.Write(hdr[:6]); err != nil {
			return fmt.Errorf("wire: failed to write framelet header (type %s): %w", fl.typ, err)
		}
		if _, err := w.Write(fl.contents); err != nil {
			return fmt.Errorf("wire: failed to write framelet content (type %s): %w", fl.typ, err)
		}
	}

	return nil
}

// ReadFrame parses exactly one frame from r, retrying short reads
// internally until either the requested byte count is delivered or the
// stream reports EOF (which, mid-frame, is always a protocol error). It
// never returns a partially populated Frame: either a complete, well-typed
// Frame, or an error. Protocol violations and an EOF inside the frame wrap
// one of the Err* sentinels in this package; any other read failure wraps
// the reader's own error.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [6]byte

	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return Frame{}, wrapReadErr("framelet count", err)
	}
	count := binary.LittleEndian.Uint16(hdr[:2])
	if count == 0 {
		return Frame{}, ErrZeroFramelets
	}

	framelets := make([]Framelet, 0, count)
	for i := uint16(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:6]); err != nil {
			return Frame{}, wrapReadErr("framelet header", err)
		}
		typ := Type(binary.LittleEndian.Uint16(hdr[:2]))
		length := binary.LittleEndian.Uint32(hdr[2:6])

		if !IsKnownType(typ) {
			return Frame{}, fmt.Errorf("%w: %s", ErrUnknownFrameletType, typ)
		}
		if length == 0 {
			return Frame{}, fmt.Errorf("%w (type %s)", ErrEmptyContents, typ)
		}
		if length > maxFrameletLength {
			return Frame{}, fmt.Errorf("%w: %d bytes (type %s)", ErrContentsTooLarge, length, typ)
		}

		content := make([]byte, length)
		if _, err := io.ReadFull(r, content); err != nil {
			return Frame{}, wrapReadErr("framelet content", err)
		}

		framelets = append(framelets, Framelet{typ: typ, contents: content})
	}

	return Frame{framelets: framelets}, nil
}

// wrapReadErr turns an EOF (clean or unexpected) encountered mid-frame into
// ErrTruncatedFrame, and otherwise wraps the underlying I/O error.
func wrapReadErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: while reading %s", ErrTruncatedFrame, what)
	}
	return fmt.Errorf("wire: failed to read %s: %w", what, err)
}
