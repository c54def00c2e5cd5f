package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/registry"
)

type inbound struct {
	conn *Conn
	msg  *protocol.Message
}

// Hub owns the live connections and serialises every routing decision on
// one goroutine. Connections feed it through Register, Unregister and
// Inbound; the Router it drives writes back through Deliver.
type Hub struct {
	cfg     Config
	reg     *registry.Registry
	router  *Router
	metrics *metrics.Metrics
	log     *slog.Logger

	register   chan *Conn
	unregister chan *Conn
	inbound    chan inbound

	// conns is only touched by the Run goroutine.
	conns map[string]*Conn

	done chan struct{}
}

// NewHub creates a Hub routing over reg. m and logger may be nil.
func NewHub(cfg Config, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	h := &Hub{
		cfg:        cfg.withDefaults(),
		reg:        reg,
		metrics:    m,
		log:        logger,
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		inbound:    make(chan inbound),
		conns:      make(map[string]*Conn),
		done:       make(chan struct{}),
	}
	h.router = NewRouter(reg, h, m, logger)
	return h
}

// Config returns the effective connection settings.
func (h *Hub) Config() Config {
	return h.cfg
}

// Registry returns the membership registry the hub routes over.
func (h *Hub) Registry() *registry.Registry {
	return h.reg
}

// Register hands a freshly upgraded connection to the hub.
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
		c.outbox.Close()
	}
}

// Unregister reports that c's read side has ended.
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Inbound hands a decoded message from c to the event loop. Messages from
// one connection are routed in the order Inbound is called.
func (h *Hub) Inbound(c *Conn, msg *protocol.Message) {
	select {
	case h.inbound <- inbound{conn: c, msg: msg}:
	case <-h.done:
	}
}

// Deliver implements Deliverer. It is only called from the Run goroutine.
func (h *Hub) Deliver(connID string, msg *protocol.Message) {
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if err := c.outbox.Push(msg); err != nil {
		if errors.Is(err, ErrOutboxFull) {
			h.metrics.Inc(metrics.OutboxOverflow)
			h.log.Warn("outbox full, closing slow connection", "conn_id", connID, "queued", c.outbox.Len())
			// The read pump sees the close and unregisters the connection.
			c.close()
		}
	}
}

// Run processes hub events until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id, c := range h.conns {
			c.close()
			c.outbox.Close()
			delete(h.conns, id)
		}
		h.log.Info("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			if err := h.router.OnConnect(c.ID); err != nil {
				h.fail(c.ID, err)
				c.close()
				c.outbox.Close()
				continue
			}
			h.conns[c.ID] = c
			h.log.Debug("client registered", "conn_id", c.ID, "remote_addr", c.RemoteAddr(), "codec", c.codec.Name())

		case c := <-h.unregister:
			// A rejected duplicate shares its ID with a live connection and
			// must not tear that one down.
			if h.conns[c.ID] != c {
				continue
			}
			delete(h.conns, c.ID)
			if err := h.router.OnDisconnect(c.ID); err != nil {
				h.fail(c.ID, err)
			}
			c.outbox.Close()

		case in := <-h.inbound:
			if h.conns[in.conn.ID] != in.conn {
				h.fail(in.conn.ID, ErrUnknownConnection)
				continue
			}
			h.log.Debug("message received", "conn_id", in.conn.ID, "type", in.msg.Type)
			if err := h.router.Dispatch(in.conn.ID, in.msg); err != nil {
				h.fail(in.conn.ID, err)
			}
		}
	}
}

// fail records a routing error. None of them are reported to the client.
func (h *Hub) fail(connID string, err error) {
	kind := errorKind(err)
	h.metrics.Inc(metrics.ErrorEvent(kind))

	switch {
	case errors.Is(err, ErrDuplicateConnection):
		h.log.Error("rejected duplicate connection", "conn_id", connID, "err", err)
	case errors.Is(err, ErrUnknownTarget):
		h.log.Debug("dropped signal", "conn_id", connID, "err", err)
	default:
		h.log.Warn("dropped message", "conn_id", connID, "kind", kind, "err", err)
	}
}
