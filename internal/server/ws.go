package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/relay"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		Subprotocols:    protocol.Subprotocols(),
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
}

// ServeWs returns an http.HandlerFunc that upgrades a request into a relay
// connection and hands it to the hub.
func (s *Server) ServeWs() http.HandlerFunc {
	upgrader := s.upgrader()

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			s.log.Warn("failed to upgrade connection", "remote_addr", r.RemoteAddr, "err", err)
			return
		}

		codec := protocol.CodecFor(ws.Subprotocol())
		conn := relay.NewConn(s.hub, ws, uuid.NewString(), codec)

		s.hub.Register(conn)

		// The pumps own the connection from here on.
		go conn.WritePump()
		go conn.ReadPump()
	}
}
