package signaling

import (
	"fmt"
	"sync"

	"github.com/BioHazard786/roomrelay/internal/protocol"
)

// SignalPayload is the session description a peer hands to another
// through the relay.
type SignalPayload struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// Signal is a SignalPayload tagged with the peer that sent it.
type Signal struct {
	PeerID  string
	Payload SignalPayload
}

// Handler routes incoming relay messages to typed channels.
type Handler struct {
	client *Client

	PeerJoined     chan string
	PeerLeft       chan string
	OfferReceived  chan *Signal
	AnswerReceived chan *Signal
	Error          chan error

	closeOnce sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:         client,
		PeerJoined:     make(chan string, 32),
		PeerLeft:       make(chan string, 32),
		OfferReceived:  make(chan *Signal, 32),
		AnswerReceived: make(chan *Signal, 32),
		Error:          make(chan error, 8),
	}
}

// Start routes incoming messages until the client's connection ends, then
// closes every channel.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.MessageTypePeerJoined:
			h.PeerJoined <- msg.PeerID

		case protocol.MessageTypePeerLeft:
			h.PeerLeft <- msg.PeerID

		case protocol.MessageTypeSignalOfferReceived:
			if sig, ok := h.parseSignal(msg); ok {
				h.OfferReceived <- sig
			}

		case protocol.MessageTypeSignalAnswerReceived:
			if sig, ok := h.parseSignal(msg); ok {
				h.AnswerReceived <- sig
			}

		default:
			h.report(fmt.Errorf("unexpected message type %q", msg.Type))
		}
	}
}

func (h *Handler) parseSignal(msg *protocol.Message) (*Signal, bool) {
	if msg.Payload == nil {
		h.report(fmt.Errorf("%s from %s without payload", msg.Type, msg.PeerID))
		return nil, false
	}
	sig := &Signal{PeerID: msg.PeerID}
	if err := msg.Payload.Decode(&sig.Payload); err != nil {
		h.report(fmt.Errorf("failed to parse %s payload from %s: %w", msg.Type, msg.PeerID, err))
		return nil, false
	}
	return sig, true
}

// report never blocks routing; errors beyond the buffer are dropped.
func (h *Handler) report(err error) {
	select {
	case h.Error <- err:
	default:
	}
}

func (h *Handler) close() {
	h.closeOnce.Do(func() {
		close(h.PeerJoined)
		close(h.PeerLeft)
		close(h.OfferReceived)
		close(h.AnswerReceived)
		close(h.Error)
	})
}
