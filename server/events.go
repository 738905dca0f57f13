package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	keepaliveInterval = 30 * time.Second
	// changes written per batch while catching up
	eventsBatch = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Events streams store changes over a websocket. Clients pass the last seq
// they have seen as ?cursor= and first receive everything after it.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	l := s.l.With("handler", "Events")

	var cursor uint64
	if c := r.URL.Query().Get("cursor"); c != "" {
		var err error
		cursor, err = strconv.ParseUint(c, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	l.Debug("upgraded http to wss", "cursor", cursor)

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	// complete backfill first before going to live data
	if err := s.streamChanges(ctx, conn, &cursor); err != nil {
		l.Error("failed to backfill", "err", err)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Debug("stopping stream: client closed connection")
			return
		case <-ch:
			if err := s.streamChanges(ctx, conn, &cursor); err != nil {
				l.Error("failed to stream", "err", err)
				return
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				l.Error("failed to write control", "err", err)
				return
			}
		}
	}
}

func (s *Server) streamChanges(ctx context.Context, conn *websocket.Conn, cursor *uint64) error {
	for {
		changes, err := s.store.Changes(ctx, *cursor, eventsBatch)
		if err != nil {
			return err
		}
		for _, c := range changes {
			if err := conn.WriteJSON(c); err != nil {
				return err
			}
			*cursor = c.Seq
		}
		if len(changes) < eventsBatch {
			return nil
		}
	}
}
