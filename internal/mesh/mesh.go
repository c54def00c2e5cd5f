// Package mesh keeps one WebRTC peer connection per room member. Members
// already in the room offer to a newcomer; the newcomer answers. Signals
// travel through the relay without trickle ICE, so every description is
// sent only after candidate gathering completes.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/roomrelay/internal/signaling"
)

var (
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrGatherTimeout    = errors.New("ICE gathering timed out")
	ErrClosed           = errors.New("mesh closed")
)

const (
	gatherTimeout = 10 * time.Second
	eventBuffer   = 64
)

// Signaler sends session descriptions to other peers through the relay.
// *signaling.Client satisfies it.
type Signaler interface {
	SendOffer(targetID string, signal *signaling.SignalPayload) error
	SendAnswer(targetID string, signal *signaling.SignalPayload) error
}

type EventKind int

const (
	EventPeerConnected EventKind = iota + 1
	EventPeerDisconnected
	EventChat
)

// Event is something the UI should show.
type Event struct {
	Kind   EventKind
	PeerID string
	Chat   *ChatMessage
}

// Options configures a Mesh.
type Options struct {
	Nick        string
	STUNServers []string
	Logger      *slog.Logger
}

type peer struct {
	id string
	pc *webrtc.PeerConnection

	mu sync.Mutex
	dc *webrtc.DataChannel
}

func (p *peer) channel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

// Mesh tracks the peer connections of one room member.
type Mesh struct {
	api    *webrtc.API
	config webrtc.Configuration
	sig    Signaler
	nick   string
	log    *slog.Logger

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool

	events chan Event
}

// New creates a Mesh that signals through sig.
func New(sig Signaler, opts Options) *Mesh {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(logger)}

	var iceServers []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: opts.STUNServers}}
	}

	return &Mesh{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		config: webrtc.Configuration{ICEServers: iceServers},
		sig:    sig,
		nick:   opts.Nick,
		log:    logger,
		peers:  make(map[string]*peer),
		events: make(chan Event, eventBuffer),
	}
}

// Events delivers connection changes and chat lines. It is never closed.
func (m *Mesh) Events() <-chan Event {
	return m.events
}

// Run drives the mesh from h until its channels close or ctx ends.
func (m *Mesh) Run(ctx context.Context, h *signaling.Handler) error {
	errs := h.Error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case id, ok := <-h.PeerJoined:
			if !ok {
				return nil
			}
			if err := m.HandlePeerJoined(ctx, id); err != nil {
				m.log.Warn("offer to new peer failed", "peer_id", id, "err", err)
			}

		case sig, ok := <-h.OfferReceived:
			if !ok {
				return nil
			}
			if err := m.HandleOffer(ctx, sig); err != nil {
				m.log.Warn("answering offer failed", "peer_id", sig.PeerID, "err", err)
			}

		case sig, ok := <-h.AnswerReceived:
			if !ok {
				return nil
			}
			if err := m.HandleAnswer(sig); err != nil {
				m.log.Warn("applying answer failed", "peer_id", sig.PeerID, "err", err)
			}

		case id, ok := <-h.PeerLeft:
			if !ok {
				return nil
			}
			m.HandlePeerLeft(id)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.log.Warn("signaling error", "err", err)
		}
	}
}

// HandlePeerJoined opens a connection to a newcomer and sends it an offer.
func (m *Mesh) HandlePeerJoined(ctx context.Context, peerID string) error {
	p, err := m.newPeer(peerID)
	if err != nil {
		return err
	}

	dc, err := p.pc.CreateDataChannel(ChatLabel, nil)
	if err != nil {
		m.drop(p)
		return fmt.Errorf("create data channel: %w", err)
	}
	m.attachChannel(p, dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		m.drop(p)
		return fmt.Errorf("create offer: %w", err)
	}
	desc, err := m.setLocal(ctx, p.pc, offer)
	if err != nil {
		m.drop(p)
		return err
	}

	return m.sig.SendOffer(peerID, &signaling.SignalPayload{Type: desc.Type.String(), SDP: desc.SDP})
}

// HandleOffer answers an offer from an existing room member.
func (m *Mesh) HandleOffer(ctx context.Context, sig *signaling.Signal) error {
	if sig.Payload.Type != webrtc.SDPTypeOffer.String() {
		return fmt.Errorf("%w: %q", ErrUnexpectedSignal, sig.Payload.Type)
	}

	p, err := m.newPeer(sig.PeerID)
	if err != nil {
		return err
	}
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == ChatLabel {
			m.attachChannel(p, dc)
		}
	})

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.Payload.SDP}); err != nil {
		m.drop(p)
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		m.drop(p)
		return fmt.Errorf("create answer: %w", err)
	}
	desc, err := m.setLocal(ctx, p.pc, answer)
	if err != nil {
		m.drop(p)
		return err
	}

	return m.sig.SendAnswer(sig.PeerID, &signaling.SignalPayload{Type: desc.Type.String(), SDP: desc.SDP})
}

// HandleAnswer completes a connection this side offered.
func (m *Mesh) HandleAnswer(sig *signaling.Signal) error {
	if sig.Payload.Type != webrtc.SDPTypeAnswer.String() {
		return fmt.Errorf("%w: %q", ErrUnexpectedSignal, sig.Payload.Type)
	}

	m.mu.Lock()
	p, ok := m.peers[sig.PeerID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("answer from %s: %w", sig.PeerID, ErrUnknownPeer)
	}

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.Payload.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// HandlePeerLeft closes the connection to a departed member.
func (m *Mesh) HandlePeerLeft(peerID string) {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.drop(p)
}

// Broadcast sends text to every peer with an open chat channel and returns
// how many received it.
func (m *Mesh) Broadcast(text string) (int, error) {
	data, err := encodeChat(m.nick, text, time.Now())
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, p := range m.snapshot() {
		dc := p.channel()
		if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
			continue
		}
		if err := dc.Send(data); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", p.id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Peers lists the IDs of peers with a connection in progress or open.
func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close tears down every peer connection.
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	peers := make([]*peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.peers = map[string]*peer{}
	m.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newPeer registers a fresh connection for id, replacing any earlier one.
func (m *Mesh) newPeer(id string) (*peer, error) {
	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p := &peer{id: id, pc: pc}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = pc.Close()
		return nil, ErrClosed
	}
	old := m.peers[id]
	m.peers[id] = p
	m.mu.Unlock()

	if old != nil {
		m.log.Debug("replacing peer connection", "peer_id", id)
		_ = old.pc.Close()
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.log.Debug("peer connection state", "peer_id", id, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			m.drop(p)
		}
	})
	return p, nil
}

// drop forgets p if it is still current and closes it.
func (m *Mesh) drop(p *peer) {
	m.mu.Lock()
	current := m.peers[p.id] == p
	if current {
		delete(m.peers, p.id)
	}
	m.mu.Unlock()

	_ = p.pc.Close()
	if current && p.channel() != nil {
		m.emit(Event{Kind: EventPeerDisconnected, PeerID: p.id})
	}
}

func (m *Mesh) attachChannel(p *peer, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		p.mu.Lock()
		p.dc = dc
		p.mu.Unlock()
		m.log.Info("chat channel open", "peer_id", p.id)
		m.emit(Event{Kind: EventPeerConnected, PeerID: p.id})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		chat, err := decodeChat(msg.Data)
		if err != nil {
			m.log.Warn("dropping malformed chat message", "peer_id", p.id, "err", err)
			return
		}
		m.emit(Event{Kind: EventChat, PeerID: p.id, Chat: chat})
	})
}

// setLocal applies desc and waits for gathering so the returned description
// carries every candidate.
func (m *Mesh) setLocal(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(gatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		return nil, ErrGatherTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return pc.LocalDescription(), nil
}

func (m *Mesh) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("event dropped, UI is not keeping up", "kind", ev.Kind, "peer_id", ev.PeerID)
	}
}

func (m *Mesh) snapshot() []*peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}
