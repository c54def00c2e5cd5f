package relay

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/registry"
)

// Deliverer queues an outbound message for one connection. Implementations
// must not block on network I/O.
type Deliverer interface {
	Deliver(connID string, msg *protocol.Message)
}

// State is where a connection is in its lifecycle.
type State int

const (
	// StateClosed covers both disconnected and never-seen connections.
	StateClosed State = iota
	StateConnected
	StateInRoom
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	default:
		return "closed"
	}
}

// Router turns connection events into outbound messages. Membership
// broadcasts (peer-joined, peer-left) are room-addressed; signals are
// addressed to a single connection ID.
//
// Router is not safe for concurrent use. The Hub calls it from its single
// event loop goroutine.
type Router struct {
	reg     *registry.Registry
	out     Deliverer
	metrics *metrics.Metrics
	log     *slog.Logger

	states map[string]State
}

// NewRouter creates a Router over reg that emits through out. m and logger
// may be nil.
func NewRouter(reg *registry.Registry, out Deliverer, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Router{
		reg:     reg,
		out:     out,
		metrics: m,
		log:     logger,
		states:  make(map[string]State),
	}
}

// State returns the lifecycle state of connID.
func (r *Router) State(connID string) State {
	return r.states[connID]
}

// OnConnect registers a new connection. Nothing is sent.
func (r *Router) OnConnect(connID string) error {
	if err := r.reg.Register(connID); err != nil {
		return fmt.Errorf("connect %s: %w", connID, err)
	}
	r.states[connID] = StateConnected
	r.metrics.Inc(metrics.ConnectionsOpened)
	r.log.Info("connection registered", "conn_id", connID)
	return nil
}

// OnJoinRoom adds connID to roomID and tells every existing member about
// the newcomer. The joiner itself is not notified.
//
// Joining the room the connection is already in is a no-op. Joining a
// second room is rejected with ErrAlreadyInRoom.
func (r *Router) OnJoinRoom(connID, roomID string) error {
	state := r.states[connID]
	switch state {
	case StateClosed:
		return fmt.Errorf("join %q by %s: %w", roomID, connID, ErrUnknownConnection)
	case StateInRoom:
		rooms, err := r.reg.RoomsOf(connID)
		if err != nil {
			return fmt.Errorf("join %q by %s: %w", roomID, connID, err)
		}
		if slices.Contains(rooms, roomID) {
			return nil
		}
		return fmt.Errorf("join %q by %s: %w", roomID, connID, ErrAlreadyInRoom)
	}

	if _, err := r.reg.Join(connID, roomID); err != nil {
		return fmt.Errorf("join %q by %s: %w", roomID, connID, err)
	}
	r.states[connID] = StateInRoom
	r.metrics.Inc(metrics.RoomsJoined)

	others := r.reg.OthersIn(roomID, connID)
	for _, other := range others {
		r.out.Deliver(other, protocol.PeerJoined(connID))
	}
	r.metrics.Add(metrics.PeerJoinedSent, uint64(len(others)))

	r.log.Info("connection joined room", "conn_id", connID, "room_id", roomID, "notified", len(others))
	return nil
}

// OnSignalOffer forwards an offer payload to targetID, tagged with the
// sender's ID. A target that is not connected is dropped with
// ErrUnknownTarget; the sender is never told.
func (r *Router) OnSignalOffer(fromID, targetID string, payload *protocol.Payload) error {
	if err := r.unicast(fromID, targetID, protocol.OfferReceived(fromID, payload)); err != nil {
		return fmt.Errorf("offer %s -> %s: %w", fromID, targetID, err)
	}
	r.metrics.Inc(metrics.OffersRelayed)
	return nil
}

// OnSignalAnswer is the reply counterpart of OnSignalOffer.
func (r *Router) OnSignalAnswer(fromID, targetID string, payload *protocol.Payload) error {
	if err := r.unicast(fromID, targetID, protocol.AnswerReceived(fromID, payload)); err != nil {
		return fmt.Errorf("answer %s -> %s: %w", fromID, targetID, err)
	}
	r.metrics.Inc(metrics.AnswersRelayed)
	return nil
}

func (r *Router) unicast(fromID, targetID string, msg *protocol.Message) error {
	if r.states[fromID] == StateClosed {
		return ErrUnknownConnection
	}
	if !r.reg.IsRegistered(targetID) {
		r.metrics.Inc(metrics.SignalsDropped)
		return ErrUnknownTarget
	}
	r.out.Deliver(targetID, msg)
	return nil
}

// OnDisconnect removes connID from every room and tells the remaining
// members of each room that it left. The connection is forgotten; later
// events for it fail with ErrUnknownConnection.
func (r *Router) OnDisconnect(connID string) error {
	if r.states[connID] == StateClosed {
		return fmt.Errorf("disconnect %s: %w", connID, ErrUnknownConnection)
	}

	left := r.reg.LeaveAll(connID)
	delete(r.states, connID)
	r.metrics.Inc(metrics.ConnectionsClosed)

	for _, roomID := range left {
		remaining := r.reg.MembersOf(roomID)
		for _, member := range remaining {
			r.out.Deliver(member, protocol.PeerLeft(connID))
		}
		r.metrics.Add(metrics.PeerLeftSent, uint64(len(remaining)))
		r.log.Info("connection left room", "conn_id", connID, "room_id", roomID, "notified", len(remaining))
	}

	r.log.Info("connection closed", "conn_id", connID)
	return nil
}

// Dispatch routes one inbound message from connID.
func (r *Router) Dispatch(connID string, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.MessageTypeJoinRoom:
		if msg.RoomID == "" {
			return fmt.Errorf("%s from %s without room_id: %w", msg.Type, connID, ErrMalformedMessage)
		}
		return r.OnJoinRoom(connID, msg.RoomID)

	case protocol.MessageTypeSignalOffer:
		if msg.TargetID == "" {
			return fmt.Errorf("%s from %s without target_id: %w", msg.Type, connID, ErrMalformedMessage)
		}
		return r.OnSignalOffer(connID, msg.TargetID, msg.Payload)

	case protocol.MessageTypeSignalAnswer:
		if msg.TargetID == "" {
			return fmt.Errorf("%s from %s without target_id: %w", msg.Type, connID, ErrMalformedMessage)
		}
		return r.OnSignalAnswer(connID, msg.TargetID, msg.Payload)

	default:
		return fmt.Errorf("%q from %s: %w", msg.Type, connID, ErrUnknownMessageType)
	}
}
