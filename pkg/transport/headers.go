package transport

import (
	"encoding/json"
	"fmt"

	"github.com/epoxyrpc/epoxy/internal/wire"
)

// payloadType distinguishes the three kinds of service-phase frames.
type payloadType uint8

const (
	payloadRequest payloadType = iota
	payloadResponse
	payloadEvent
)

func (t payloadType) String() string {
	switch t {
	case payloadRequest:
		return "Request"
	case payloadResponse:
		return "Response"
	case payloadEvent:
		return "Event"
	default:
		return "Unknown"
	}
}

// wireHeaders is the EpoxyHeaders framelet's content. It is JSON-encoded so
// that, like the Bond records it stands in for, unknown fields added by a
// newer peer are silently ignored rather than rejected.
type wireHeaders struct {
	RequestID uint64      `json:"request_id"`
	Method    string      `json:"method_name"`
	Type      payloadType `json:"payload_type"`
	ErrorCode string      `json:"error_code,omitempty"`
	ErrorMsg  string      `json:"error_message,omitempty"`
}

func encodeHeaders(h wireHeaders) (wire.Framelet, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return wire.Framelet{}, fmt.Errorf("transport: failed to encode headers: %w", err)
	}
	return wire.NewFramelet(wire.EpoxyHeaders, b)
}

func decodeHeaders(fl wire.Framelet) (wireHeaders, error) {
	var h wireHeaders
	if err := json.Unmarshal(fl.Contents(), &h); err != nil {
		return wireHeaders{}, fmt.Errorf("transport: failed to decode headers: %w", err)
	}
	return h, nil
}

// classifiedFrame is the result of inspecting an inbound frame's framelet
// shape against the canonical shapes in the service phase.
type classifiedFrame struct {
	isProtocolError bool
	protocolErr     wireHeaders // reused for error code/message when isProtocolError
	headers         wireHeaders
	layerData       []byte
	payload         []byte
}

// classifyFrame inspects f and reports which canonical shape it matches, or
// an error if it matches none of them.
func classifyFrame(f wire.Frame) (classifiedFrame, error) {
	if pe, ok := f.First(wire.ProtocolError); ok && f.Len() == 1 {
		var h wireHeaders
		_ = json.Unmarshal(pe.Contents(), &h)
		return classifiedFrame{isProtocolError: true, protocolErr: h}, nil
	}

	hfl, ok := f.First(wire.EpoxyHeaders)
	if !ok {
		return classifiedFrame{}, newErrorf(KindProtocolError, "frame has no EpoxyHeaders or standalone ProtocolError framelet")
	}
	h, err := decodeHeaders(hfl)
	if err != nil {
		return classifiedFrame{}, newErrorf(KindProtocolError, "%w", err)
	}

	pfl, ok := f.First(wire.PayloadData)
	if !ok {
		return classifiedFrame{}, newErrorf(KindProtocolError, "frame is missing mandatory PayloadData framelet")
	}

	result := classifiedFrame{headers: h, payload: decodePayload(pfl.Contents())}
	if ld, ok := f.First(wire.LayerData); ok {
		result.layerData = ld.Contents()
	}
	return result, nil
}

func protocolErrorFrame(code, msg string) (wire.Frame, error) {
	b, err := json.Marshal(wireHeaders{ErrorCode: code, ErrorMsg: msg})
	if err != nil {
		return wire.Frame{}, fmt.Errorf("transport: failed to encode protocol error: %w", err)
	}
	errFramelet, err := wire.NewFramelet(wire.ProtocolError, b)
	if err != nil {
		return wire.Frame{}, err
	}
	return wire.NewFrame(errFramelet)
}

func serviceFrame(h wireHeaders, layerData, payload []byte) (wire.Frame, error) {
	hfl, err := encodeHeaders(h)
	if err != nil {
		return wire.Frame{}, err
	}
	framelets := []wire.Framelet{hfl}
	if len(layerData) > 0 {
		ldfl, err := wire.NewFramelet(wire.LayerData, layerData)
		if err != nil {
			return wire.Frame{}, err
		}
		framelets = append(framelets, ldfl)
	}
	pfl, err := wire.NewFramelet(wire.PayloadData, encodePayload(payload))
	if err != nil {
		return wire.Frame{}, err
	}
	framelets = append(framelets, pfl)
	return wire.NewFrame(framelets...)
}

// encodePayload/decodePayload prefix the payload with a one-byte
// presence flag, since a wire framelet's contents must never be empty
// (spec §3) but a Message's payload legitimately may be.
func encodePayload(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{0}
	}
	return append([]byte{1}, payload...)
}

func decodePayload(contents []byte) []byte {
	if len(contents) == 0 || contents[0] == 0 {
		return nil
	}
	return contents[1:]
}
