package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/xostack/xoswarm"
)

// handleStream answers with server-sent events, one "data: <json>" frame per
// lifecycle event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	failed := false
	s.pipeline.Stream(r.Context(), req, func(ev xoswarm.Event) {
		if failed {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encoding event failed", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("stream client went away", zap.Error(err))
			failed = true
			return
		}
		_ = rc.Flush()
	})
}

// handleWebSocket treats every text frame as a chat request and streams its
// events back. A malformed frame gets one error event and the connection
// stays open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBytes)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		if typ != websocket.MessageText {
			if !s.writeEvent(ctx, conn, xoswarm.Event{Status: xoswarm.StatusError, Error: "expected a JSON text frame"}) {
				return
			}
			continue
		}
		req, err := decodeChatRequest(bytes.NewReader(data))
		if err != nil {
			if !s.writeEvent(ctx, conn, xoswarm.Event{Status: xoswarm.StatusError, Error: err.Error()}) {
				return
			}
			continue
		}

		alive := true
		s.pipeline.Stream(ctx, req, func(ev xoswarm.Event) {
			if alive {
				alive = s.writeEvent(ctx, conn, ev)
			}
		})
		if !alive {
			return
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev xoswarm.Event) bool {
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
