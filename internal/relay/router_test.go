package relay

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/registry"
)

type delivery struct {
	to  string
	msg *protocol.Message
}

type recordingDeliverer struct {
	sent []delivery
}

func (d *recordingDeliverer) Deliver(connID string, msg *protocol.Message) {
	d.sent = append(d.sent, delivery{to: connID, msg: msg})
}

func (d *recordingDeliverer) to(connID string) []*protocol.Message {
	var out []*protocol.Message
	for _, s := range d.sent {
		if s.to == connID {
			out = append(out, s.msg)
		}
	}
	return out
}

func (d *recordingDeliverer) reset() { d.sent = nil }

func newTestRouter(t *testing.T) (*Router, *recordingDeliverer, *registry.Registry, *metrics.Metrics) {
	t.Helper()
	reg := registry.New()
	out := &recordingDeliverer{}
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(reg, out, m, logger), out, reg, m
}

func mustConnect(t *testing.T, r *Router, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := r.OnConnect(id); err != nil {
			t.Fatalf("OnConnect(%s): %v", id, err)
		}
	}
}

func mustJoin(t *testing.T, r *Router, id, room string) {
	t.Helper()
	if err := r.OnJoinRoom(id, room); err != nil {
		t.Fatalf("OnJoinRoom(%s, %s): %v", id, room, err)
	}
}

func messageSummary(msgs []*protocol.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type+":"+m.PeerID)
	}
	return out
}

func TestOnConnect_SendsNothing(t *testing.T) {
	r, out, _, _ := newTestRouter(t)
	mustConnect(t, r, "a")

	if len(out.sent) != 0 {
		t.Fatalf("sent %d messages on connect", len(out.sent))
	}
	if got := r.State("a"); got != StateConnected {
		t.Fatalf("state=%v, want connected", got)
	}
}

func TestOnConnect_Duplicate(t *testing.T) {
	r, _, reg, _ := newTestRouter(t)
	mustConnect(t, r, "a")
	mustJoin(t, r, "a", "r1")

	err := r.OnConnect("a")
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("err=%v, want ErrDuplicateConnection", err)
	}
	if got := r.State("a"); got != StateInRoom {
		t.Fatalf("state=%v after rejected duplicate, want in_room", got)
	}
	if got := reg.MembersOf("r1"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("members=%v", got)
	}
}

func TestOnJoinRoom_NotifiesExistingMembersOnly(t *testing.T) {
	r, out, _, m := newTestRouter(t)
	mustConnect(t, r, "a", "b")

	mustJoin(t, r, "a", "r1")
	if len(out.sent) != 0 {
		t.Fatalf("first joiner triggered %d messages", len(out.sent))
	}

	mustJoin(t, r, "b", "r1")
	if got := messageSummary(out.to("a")); !reflect.DeepEqual(got, []string{"peer-joined:b"}) {
		t.Fatalf("a received %v", got)
	}
	if got := out.to("b"); len(got) != 0 {
		t.Fatalf("newcomer received %v", messageSummary(got))
	}
	if got := r.State("b"); got != StateInRoom {
		t.Fatalf("state=%v, want in_room", got)
	}
	if m.Get(metrics.PeerJoinedSent) != 1 || m.Get(metrics.RoomsJoined) != 2 {
		t.Fatalf("metrics=%v", m.Snapshot())
	}
}

func TestOnJoinRoom_UnknownConnection(t *testing.T) {
	r, out, reg, _ := newTestRouter(t)

	if err := r.OnJoinRoom("ghost", "r1"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("err=%v, want ErrUnknownConnection", err)
	}
	if len(out.sent) != 0 || len(reg.MembersOf("r1")) != 0 {
		t.Fatalf("unknown join had side effects")
	}
}

func TestOnJoinRoom_SecondJoinPolicy(t *testing.T) {
	r, out, reg, _ := newTestRouter(t)
	mustConnect(t, r, "a", "b")
	mustJoin(t, r, "a", "r1")
	mustJoin(t, r, "b", "r1")
	out.reset()

	// Same room again: silently idempotent.
	if err := r.OnJoinRoom("b", "r1"); err != nil {
		t.Fatalf("rejoin same room: %v", err)
	}
	if len(out.sent) != 0 {
		t.Fatalf("rejoin sent %v", messageSummary(out.to("a")))
	}

	// Different room: rejected, membership untouched.
	if err := r.OnJoinRoom("b", "r2"); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("err=%v, want ErrAlreadyInRoom", err)
	}
	if got := reg.MembersOf("r2"); len(got) != 0 {
		t.Fatalf("r2 members=%v", got)
	}
	if rooms, _ := reg.RoomsOf("b"); !reflect.DeepEqual(rooms, []string{"r1"}) {
		t.Fatalf("b rooms=%v", rooms)
	}
}

func TestSignal_UnicastWithOriginAttached(t *testing.T) {
	r, out, _, m := newTestRouter(t)
	mustConnect(t, r, "a", "b", "c")
	mustJoin(t, r, "a", "r1")
	mustJoin(t, r, "b", "r1")
	mustJoin(t, r, "c", "r1")
	out.reset()

	offer := protocol.NewJSONPayload([]byte(`{"type":"offer","sdp":"s1"}`))
	if err := r.OnSignalOffer("a", "b", offer); err != nil {
		t.Fatalf("OnSignalOffer: %v", err)
	}
	answer := protocol.NewJSONPayload([]byte(`{"type":"answer","sdp":"s2"}`))
	if err := r.OnSignalAnswer("b", "a", answer); err != nil {
		t.Fatalf("OnSignalAnswer: %v", err)
	}

	if len(out.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(out.sent))
	}
	if got := out.to("c"); len(got) != 0 {
		t.Fatalf("bystander received %v", messageSummary(got))
	}

	toB := out.to("b")
	if len(toB) != 1 || toB[0].Type != protocol.MessageTypeSignalOfferReceived || toB[0].PeerID != "a" {
		t.Fatalf("b received %+v", toB)
	}
	if toB[0].Payload != offer {
		t.Fatalf("offer payload was replaced")
	}

	toA := out.to("a")
	if len(toA) != 1 || toA[0].Type != protocol.MessageTypeSignalAnswerReceived || toA[0].PeerID != "b" {
		t.Fatalf("a received %+v", toA)
	}
	if string(toA[0].Payload.Raw()) != `{"type":"answer","sdp":"s2"}` {
		t.Fatalf("answer payload=%s", toA[0].Payload.Raw())
	}

	if m.Get(metrics.OffersRelayed) != 1 || m.Get(metrics.AnswersRelayed) != 1 {
		t.Fatalf("metrics=%v", m.Snapshot())
	}
}

func TestSignal_VanishedTargetDropped(t *testing.T) {
	r, out, _, m := newTestRouter(t)
	mustConnect(t, r, "a", "b")
	mustJoin(t, r, "a", "r1")
	mustJoin(t, r, "b", "r1")
	if err := r.OnDisconnect("b"); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}
	out.reset()

	err := r.OnSignalOffer("a", "b", protocol.NewJSONPayload([]byte(`"x"`)))
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err=%v, want ErrUnknownTarget", err)
	}
	err = r.OnSignalAnswer("a", "never", nil)
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err=%v, want ErrUnknownTarget", err)
	}
	if len(out.sent) != 0 {
		t.Fatalf("dropped signals produced %d messages", len(out.sent))
	}
	if m.Get(metrics.SignalsDropped) != 2 {
		t.Fatalf("signals_dropped=%d", m.Get(metrics.SignalsDropped))
	}
}

func TestOnDisconnect_NotifiesRemainingMembers(t *testing.T) {
	r, out, reg, _ := newTestRouter(t)
	mustConnect(t, r, "a", "b", "c", "other")
	mustJoin(t, r, "a", "r1")
	mustJoin(t, r, "b", "r1")
	mustJoin(t, r, "c", "r1")
	mustJoin(t, r, "other", "r2")
	out.reset()

	if err := r.OnDisconnect("b"); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}

	for _, id := range []string{"a", "c"} {
		if got := messageSummary(out.to(id)); !reflect.DeepEqual(got, []string{"peer-left:b"}) {
			t.Fatalf("%s received %v", id, got)
		}
	}
	if got := out.to("other"); len(got) != 0 {
		t.Fatalf("member of another room received %v", messageSummary(got))
	}
	if got := reg.MembersOf("r1"); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("members=%v", got)
	}
	if got := r.State("b"); got != StateClosed {
		t.Fatalf("state=%v, want closed", got)
	}
}

func TestOnDisconnect_WithoutRoom(t *testing.T) {
	r, out, _, _ := newTestRouter(t)
	mustConnect(t, r, "a")

	if err := r.OnDisconnect("a"); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}
	if len(out.sent) != 0 {
		t.Fatalf("sent %d messages", len(out.sent))
	}
}

func TestClosedConnectionRejected(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	mustConnect(t, r, "a", "b")
	mustJoin(t, r, "b", "r1")
	if err := r.OnDisconnect("a"); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}

	checks := map[string]error{
		"join":       r.OnJoinRoom("a", "r1"),
		"offer":      r.OnSignalOffer("a", "b", nil),
		"answer":     r.OnSignalAnswer("a", "b", nil),
		"disconnect": r.OnDisconnect("a"),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrUnknownConnection) {
			t.Errorf("%s: err=%v, want ErrUnknownConnection", name, err)
		}
	}
}

func TestDispatch(t *testing.T) {
	r, out, _, _ := newTestRouter(t)
	mustConnect(t, r, "a", "b")

	tests := []struct {
		name    string
		from    string
		msg     *protocol.Message
		wantErr error
	}{
		{"join a", "a", &protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: "r1"}, nil},
		{"join b", "b", &protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: "r1"}, nil},
		{"join without room", "a", &protocol.Message{Type: protocol.MessageTypeJoinRoom}, ErrMalformedMessage},
		{"offer", "b", &protocol.Message{Type: protocol.MessageTypeSignalOffer, TargetID: "a"}, nil},
		{"offer without target", "b", &protocol.Message{Type: protocol.MessageTypeSignalOffer}, ErrMalformedMessage},
		{"answer", "a", &protocol.Message{Type: protocol.MessageTypeSignalAnswer, TargetID: "b"}, nil},
		{"answer without target", "a", &protocol.Message{Type: protocol.MessageTypeSignalAnswer}, ErrMalformedMessage},
		{"outbound type inbound", "a", &protocol.Message{Type: protocol.MessageTypePeerJoined, PeerID: "x"}, ErrUnknownMessageType},
		{"garbage type", "a", &protocol.Message{Type: "hello"}, ErrUnknownMessageType},
	}
	for _, tt := range tests {
		err := r.Dispatch(tt.from, tt.msg)
		if tt.wantErr == nil && err != nil {
			t.Errorf("%s: unexpected err %v", tt.name, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: err=%v, want %v", tt.name, err, tt.wantErr)
		}
	}

	want := []string{
		"a peer-joined:b",
		"a signal-offer-received:b",
		"b signal-answer-received:a",
	}
	var got []string
	for _, s := range out.sent {
		got = append(got, s.to+" "+s.msg.Type+":"+s.msg.PeerID)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
}

// Three connections join in order, one offers, one leaves.
func TestScenario_ThreePeers(t *testing.T) {
	r, out, reg, _ := newTestRouter(t)
	mustConnect(t, r, "X", "Y", "Z")
	mustJoin(t, r, "X", "r1")
	mustJoin(t, r, "Y", "r1")
	mustJoin(t, r, "Z", "r1")

	if got := messageSummary(out.to("X")); !reflect.DeepEqual(got, []string{"peer-joined:Y", "peer-joined:Z"}) {
		t.Fatalf("X received %v", got)
	}
	if got := messageSummary(out.to("Y")); !reflect.DeepEqual(got, []string{"peer-joined:Z"}) {
		t.Fatalf("Y received %v", got)
	}
	if got := out.to("Z"); len(got) != 0 {
		t.Fatalf("Z received %v", messageSummary(got))
	}
	out.reset()

	p1 := protocol.NewJSONPayload([]byte(`"p1"`))
	if err := r.OnSignalOffer("X", "Y", p1); err != nil {
		t.Fatalf("OnSignalOffer: %v", err)
	}
	toY := out.to("Y")
	if len(toY) != 1 || toY[0].Type != protocol.MessageTypeSignalOfferReceived || toY[0].PeerID != "X" || string(toY[0].Payload.Raw()) != `"p1"` {
		t.Fatalf("Y received %+v", toY)
	}
	out.reset()

	if err := r.OnDisconnect("Y"); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}
	for _, id := range []string{"X", "Z"} {
		if got := messageSummary(out.to(id)); !reflect.DeepEqual(got, []string{"peer-left:Y"}) {
			t.Fatalf("%s received %v", id, got)
		}
	}
	if got := reg.MembersOf("r1"); !reflect.DeepEqual(got, []string{"X", "Z"}) {
		t.Fatalf("membersOf(r1)=%v, want [X Z]", got)
	}
}
