package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/causerie-ai/causerie/internal/turn"
	"github.com/causerie-ai/causerie/pkg/protocol"
)

// writeTimeout bounds a single WebSocket write. A client that cannot keep up
// with real-time audio for this long is effectively gone.
const writeTimeout = 5 * time.Second

// handleWS upgrades the connection and runs one tutoring session on it. The
// session ends when the client disconnects or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Audio is already compact PCM; compression only burns CPU.
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	sid := uuid.NewString()
	log := s.log.With("session_id", sid)
	log.Info("session started", "remote", r.RemoteAddr)

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	err = s.runSession(ctx, conn, log)
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "bye")
		log.Info("session ended")
	default:
		conn.Close(websocket.StatusInternalError, "session error")
		log.Warn("session ended with error", "error", err)
	}
}

// runSession wires one connection to a fresh turn controller and pumps frames
// both ways until either side goes away.
func (s *Server) runSession(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &wsSink{ctx: ctx, conn: conn}
	ctrl := turn.New(sink, s.sttP, s.ttsP, s.engine,
		turn.WithVoice(s.cfg.Tutor.Voice),
		turn.WithLanguage(s.cfg.Tutor.Language),
		turn.WithLogger(log),
		turn.WithMetrics(s.metrics),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	g.Go(func() error {
		defer cancel() // reader gone means the session is over
		return s.readLoop(ctx, conn, ctrl, sink, log)
	})
	return g.Wait()
}

// readLoop decodes inbound frames and hands them to the controller. Binary
// frames are capture audio; text frames are control records. Malformed
// records are answered with a status error and otherwise ignored.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ctrl *turn.Controller, sink *wsSink, log *slog.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			ctrl.HandleAudio(data)

		case websocket.MessageText:
			msg, err := protocol.Decode(data)
			if err != nil {
				log.Debug("dropping malformed record", "error", err)
				_ = sink.SendMessage(protocol.StatusErr("malformed message", err))
				continue
			}
			ctrl.HandleMessage(msg)
		}
	}
}

// wsSink delivers controller output over the WebSocket. Writes are serialised
// with a mutex because both the controller loop and the read loop (for
// malformed-input replies) send through it.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn

	mu sync.Mutex
}

// SendMessage encodes and writes one control record as a text frame.
func (s *wsSink) SendMessage(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.write(websocket.MessageText, data)
}

// SendAudio writes one PCM16 chunk as a binary frame.
func (s *wsSink) SendAudio(chunk []byte) error {
	return s.write(websocket.MessageBinary, chunk)
}

func (s *wsSink) write(typ websocket.MessageType, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, typ, data)
}

// Compile-time assertion that wsSink satisfies the turn.Sink interface.
var _ turn.Sink = (*wsSink)(nil)
