package relay

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/protocol"
)

// Conn is one client's websocket link to the hub.
type Conn struct {
	// ID is assigned on upgrade and stays fixed for the connection's life.
	ID string

	hub    *Hub
	ws     *websocket.Conn
	codec  protocol.Codec
	outbox *Outbox
	log    *slog.Logger

	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket. The codec should match the
// negotiated subprotocol.
func NewConn(hub *Hub, ws *websocket.Conn, id string, codec protocol.Codec) *Conn {
	return &Conn{
		ID:     id,
		hub:    hub,
		ws:     ws,
		codec:  codec,
		outbox: NewOutbox(defaultOutboxCapacity, hub.cfg.OutboxLimit),
		log:    hub.log.With("conn_id", id),
	}
}

// RemoteAddr returns the peer address of the underlying socket.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	cfg := c.hub.cfg
	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "err", err)
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.hub.metrics.Inc(metrics.ErrorEvent("decode"))
			c.log.Warn("dropping undecodable frame", "codec", c.codec.Name(), "bytes", len(data), "err", err)
			continue
		}

		c.hub.Inbound(c, msg)
	}
}

// WritePump pumps messages from the outbox to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.pingPeriod())

	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.outbox.Ready():
			msgs, open := c.outbox.Drain(drainBatch)
			for _, msg := range msgs {
				if err := c.write(msg); err != nil {
					c.log.Debug("websocket write failed", "err", err)
					return
				}
			}
			if !open {
				_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) write(msg *protocol.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		// A payload that cannot be transcoded for this client is dropped
		// without closing the connection.
		c.hub.metrics.Inc(metrics.EncodeFailures)
		c.log.Warn("dropping unencodable message", "type", msg.Type, "codec", c.codec.Name(), "err", err)
		return nil
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
	return c.ws.WriteMessage(c.codec.FrameType(), data)
}
