package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/registry"
	"github.com/BioHazard786/roomrelay/internal/relay"
	"github.com/BioHazard786/roomrelay/internal/server"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startRelay(t *testing.T) (wsURL string, reg *registry.Registry) {
	t.Helper()

	reg = registry.New()
	hub := relay.NewHub(relay.Config{}, reg, nil, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := server.New(&config.Server{
		ListenAddr:      "127.0.0.1:0",
		AllowedOrigins:  []string{"*"},
		MaxMessageBytes: config.DefaultMaxMessageBytes,
		OutboxLimit:     config.DefaultOutboxLimit,
	}, hub, nil, quiet)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", reg
}

func connect(t *testing.T, url string, codec protocol.Codec) (*Client, *Handler) {
	t.Helper()
	c := NewClient(url, codec, quiet)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)

	h := NewHandler(c)
	go h.Start()
	return c, h
}

func waitMembers(t *testing.T, reg *registry.Registry, roomID string, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(reg.MembersOf(roomID)) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached %d members", roomID, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("%s channel closed", what)
		}
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestClient_OfferAnswerAcrossCodecs(t *testing.T) {
	url, reg := startRelay(t)

	a, ha := connect(t, url, protocol.JSONCodec{})
	b, hb := connect(t, url, protocol.MsgpackCodec{})

	if a.Codec().Name() != "json" || b.Codec().Name() != "msgpack" {
		t.Fatalf("codecs %s/%s", a.Codec().Name(), b.Codec().Name())
	}

	if err := a.JoinRoom("lobby"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	waitMembers(t, reg, "lobby", 1)
	if err := b.JoinRoom("lobby"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	bID := recv(t, ha.PeerJoined, "peer joined")

	if err := a.SendOffer(bID, &SignalPayload{Type: "offer", SDP: "v=0 a"}); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	offer := recv(t, hb.OfferReceived, "offer")
	if offer.Payload.Type != "offer" || offer.Payload.SDP != "v=0 a" {
		t.Fatalf("offer=%+v", offer.Payload)
	}

	if err := b.SendAnswer(offer.PeerID, &SignalPayload{Type: "answer", SDP: "v=0 b"}); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}
	answer := recv(t, ha.AnswerReceived, "answer")
	if answer.PeerID != bID || answer.Payload.SDP != "v=0 b" {
		t.Fatalf("answer=%+v", answer)
	}

	b.Close()
	if left := recv(t, ha.PeerLeft, "peer left"); left != bID {
		t.Fatalf("peer left=%q, want %q", left, bID)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	url, _ := startRelay(t)
	c, h := connect(t, url, protocol.JSONCodec{})

	c.Close()
	c.Close()
	if err := c.JoinRoom("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}

	// The handler closes its channels once the connection ends.
	select {
	case _, ok := <-h.PeerJoined:
		if ok {
			t.Fatalf("unexpected peer joined")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler did not stop")
	}
}

func TestConnect_BadURL(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", protocol.JSONCodec{}, quiet)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatalf("expected connect error")
	}
}
