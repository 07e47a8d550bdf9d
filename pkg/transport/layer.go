package transport

import "context"

// Layer is one stage of the pluggable pre/post-send transform pipeline: an
// external collaborator the spec names but does not define (§1). A Layer
// may attach out-of-band bytes to an outgoing payload (returned as its
// LayerData contribution) and unwrap them again on the inbound side.
type Layer interface {
	// Outgoing runs before a request or event is sent. It returns the bytes
	// to carry in the frame's LayerData framelet (nil to contribute none)
	// and the (possibly transformed) payload to send.
	Outgoing(ctx context.Context, payload []byte) (layerData, outPayload []byte, err error)

	// Incoming runs after a request or event frame is classified, before
	// dispatch. It receives the frame's LayerData bytes (nil if absent) and
	// returns the payload to hand to the response map or ServiceHost.
	Incoming(ctx context.Context, layerData, payload []byte) ([]byte, error)
}

// LayerStack is an ordered pipeline of Layers, applied outermost-first on
// the way out and outermost-last on the way in. Grounded on the teacher's
// functional DialOpt chain (pkg/websocket/dial.go), generalized from a
// one-shot configuration chain into a per-message transform pipeline.
type LayerStack struct {
	layers []Layer
}

// NewLayerStack builds a LayerStack from layers, applied in the given order.
func NewLayerStack(layers ...Layer) *LayerStack {
	return &LayerStack{layers: layers}
}

func (s *LayerStack) outgoing(ctx context.Context, payload []byte) (layerData, outPayload []byte, err error) {
	if s == nil {
		return nil, payload, nil
	}
	outPayload = payload
	for _, l := range s.layers {
		var ld []byte
		ld, outPayload, err = l.Outgoing(ctx, outPayload)
		if err != nil {
			return nil, nil, err
		}
		if ld != nil {
			layerData = ld
		}
	}
	return layerData, outPayload, nil
}

func (s *LayerStack) incoming(ctx context.Context, layerData, payload []byte) ([]byte, error) {
	if s == nil {
		return payload, nil
	}
	out := payload
	var err error
	for i := len(s.layers) - 1; i >= 0; i-- {
		out, err = s.layers[i].Incoming(ctx, layerData, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TransportOption configures a Transport at construction time. Grounded on
// the teacher's DialOpt pattern.
type TransportOption func(*Transport)

// WithLayerStack installs the process-wide layer stack used by every
// connection the Transport creates.
func WithLayerStack(s *LayerStack) TransportOption {
	return func(t *Transport) {
		t.layers = s
	}
}
