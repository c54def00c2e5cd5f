package protocol

// Message is the single frame shape exchanged with clients in both
// directions. Which fields are set depends on Type.
type Message struct {
	Type string `json:"type" msgpack:"type"`

	// RoomID is set on join-room.
	RoomID string `json:"room_id,omitempty" msgpack:"room_id,omitempty"`

	// TargetID addresses signal-offer and signal-answer to one connection.
	TargetID string `json:"target_id,omitempty" msgpack:"target_id,omitempty"`

	// PeerID names the other party on every outbound message: the newcomer,
	// the departing peer, or the origin of a relayed signal.
	PeerID string `json:"peer_id,omitempty" msgpack:"peer_id,omitempty"`

	// Payload is never inspected by the relay.
	Payload *Payload `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom     = "join-room"
	MessageTypeSignalOffer  = "signal-offer"
	MessageTypeSignalAnswer = "signal-answer"

	MessageTypePeerJoined           = "peer-joined"
	MessageTypeSignalOfferReceived  = "signal-offer-received"
	MessageTypeSignalAnswerReceived = "signal-answer-received"
	MessageTypePeerLeft             = "peer-left"
)

// PeerJoined announces newID to an existing room member.
func PeerJoined(newID string) *Message {
	return &Message{Type: MessageTypePeerJoined, PeerID: newID}
}

// PeerLeft announces that departingID disconnected.
func PeerLeft(departingID string) *Message {
	return &Message{Type: MessageTypePeerLeft, PeerID: departingID}
}

// OfferReceived carries an offer from originID to its target.
func OfferReceived(originID string, payload *Payload) *Message {
	return &Message{Type: MessageTypeSignalOfferReceived, PeerID: originID, Payload: payload}
}

// AnswerReceived carries an answer from respondingID back to the offerer.
func AnswerReceived(respondingID string, payload *Payload) *Message {
	return &Message{Type: MessageTypeSignalAnswerReceived, PeerID: respondingID, Payload: payload}
}
