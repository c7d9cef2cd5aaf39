package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gorilla/websocket"

	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/frame"
	"github.com/smazurov/simstream/internal/metrics"
	"github.com/smazurov/simstream/internal/session"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsMessage is the text message sent alongside binary frames.
type wsMessage struct {
	Type    string `json:"type"`
	Mode    string `json:"mode,omitempty"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

// registerWebSocketRoutes mounts the websocket stream directly on the mux;
// huma has no websocket operations.
func (s *Server) registerWebSocketRoutes() {
	s.mux.HandleFunc("GET /api/stream/ws", s.handleStreamWS)
}

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		status, msg := checkCredentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"),
			s.options.AuthUsername, s.options.AuthPassword)
		if status != http.StatusOK {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, msg, status)
			return
		}
	}

	q := r.URL.Query()
	udid := q.Get("udid")
	if udid == "" {
		http.Error(w, "udid is required", http.StatusBadRequest)
		return
	}
	fps, _ := strconv.Atoi(q.Get("fps"))
	quality, _ := strconv.ParseFloat(q.Get("quality"), 64)
	params := s.streamParams(fps, quality)

	sess, err := s.openSession(r.Context(), udid, params)
	if err != nil {
		var se huma.StatusError
		if errors.As(err, &se) {
			http.Error(w, err.Error(), se.GetStatus())
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "udid", udid, "error", err)
		return
	}
	defer conn.Close()

	consumer, err := sess.Attach()
	if err != nil {
		writeWSClose(conn, websocket.CloseGoingAway, err.Error())
		return
	}
	defer consumer.Release()

	disconnected := metrics.StreamClientConnected("websocket")
	defer disconnected()

	s.pumpWS(r.Context(), conn, sess, consumer)
}

// pumpWS is the only writer on conn. Frames and mode changes are merged
// here; a reader goroutine drains client messages to notice the close.
func (s *Server) pumpWS(parent context.Context, conn *websocket.Conn, sess *session.Session, consumer *session.Consumer) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	modes := make(chan events.ModeChangedEvent, 4)
	unsubscribe := func() {}
	if s.eventBus != nil {
		unsubscribe = s.eventBus.Subscribe(func(e events.ModeChangedEvent) {
			if e.Identity != sess.Identity {
				return
			}
			select {
			case modes <- e:
			default:
			}
		})
	}
	defer unsubscribe()

	frames := make(chan *frame.Frame)
	errc := make(chan error, 1)
	go func() {
		for {
			f, err := consumer.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				errc <- context.Cause(ctx)
				return
			}
		}
	}()

	if err := writeWSJSON(conn, wsMessage{Type: "mode", Mode: sess.Mode().String(), State: sess.State().String()}); err != nil {
		return
	}

	sent := 0
	for {
		select {
		case f := <-frames:
			data, err := frame.EncodeJPEG(f, sess.Params.Quality)
			if err != nil {
				s.logger.Debug("Dropping unencodable frame", "udid", sess.Identity, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.logStreamEnd(sess.Identity, "websocket", sent, err)
				return
			}
			sent++
		case m := <-modes:
			if err := writeWSJSON(conn, wsMessage{Type: "mode", Mode: m.Mode, State: m.State}); err != nil {
				return
			}
		case err := <-errc:
			s.logStreamEnd(sess.Identity, "websocket", sent, err)
			if errors.Is(err, session.ErrDisplaced) {
				writeWSClose(conn, websocket.ClosePolicyViolation, "displaced by a newer viewer")
			} else if !errors.Is(err, context.Canceled) {
				writeWSClose(conn, websocket.CloseGoingAway, err.Error())
			}
			return
		}
	}
}

func writeWSJSON(conn *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeWSClose(conn *websocket.Conn, code int, reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
