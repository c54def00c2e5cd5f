package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/roomrelay/internal/dns"
	"github.com/BioHazard786/roomrelay/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling client closed")

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	log       *slog.Logger

	// Dialer is used by Connect. Tests swap in one without the DNS fallback.
	Dialer *websocket.Dialer

	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}

	closeOnce sync.Once
}

// NewClient creates a new signaling client that offers codec to the relay.
func NewClient(serverURL string, codec protocol.Codec, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		log:       logger,
		Dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
			NetDialContext:   dns.DialContext,
		},
		incoming: make(chan *protocol.Message, 32),
		outgoing: make(chan *protocol.Message, 32),
		done:     make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *c.Dialer
	dialer.Subprotocols = []string{protocol.SubprotocolOf(c.codec)}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	// A relay that ignores the subprotocol speaks JSON.
	c.codec = protocol.CodecFor(conn.Subprotocol())
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.log.Debug("connected to relay", "url", u.String(), "codec", c.codec.Name())

	go c.readPump()
	go c.writePump()

	return nil
}

// Codec reports the codec in use after Connect.
func (c *Client) Codec() protocol.Codec {
	return c.codec
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("relay connection lost", "err", err)
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn("dropping undecodable relay frame", "err", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Warn("dropping unencodable message", "type", msg.Type, "err", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the relay.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// JoinRoom asks the relay to add this connection to roomID.
func (c *Client) JoinRoom(roomID string) error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: roomID})
}

// SendOffer relays an offer to targetID.
func (c *Client) SendOffer(targetID string, signal *SignalPayload) error {
	return c.sendSignal(protocol.MessageTypeSignalOffer, targetID, signal)
}

// SendAnswer relays an answer to targetID.
func (c *Client) SendAnswer(targetID string, signal *SignalPayload) error {
	return c.sendSignal(protocol.MessageTypeSignalAnswer, targetID, signal)
}

func (c *Client) sendSignal(typ, targetID string, signal *SignalPayload) error {
	payload, err := protocol.MarshalPayload(signal)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return c.Send(&protocol.Message{Type: typ, TargetID: targetID, Payload: payload})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
