/* websocket.go
 * Contains the websocket endpoint that pushes a snapshot of the draft on connect and after every committed write.
 * Slow clients only ever get the latest snapshot, intermediate ones are dropped
 * Authors: Zachary Bower
 */

package web

import (
	"context"
	"encoding/json"
	"inhouse-bot/api/store"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

// DraftWebsocket upgrades the connection and streams draft snapshots until either side closes it
func (s *Server) DraftWebsocket(w http.ResponseWriter, r *http.Request) {
	// Make sure there is a draft to push
	if _, err := s.api.GetDraft(r.Context()); err != nil {
		s.writeAPIError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.origins}
	for _, o := range s.origins {
		if o == "*" {
			opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
			break
		}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Clients never send anything, CloseRead handles their close frames
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	latest := make(chan store.Draft, 1)
	push := func(d store.Draft) {
		for {
			select {
			case latest <- d:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	}

	stop, err := s.api.Store.SubscribeDraft(ctx, func(c store.Change[store.Draft]) {
		if c.After != nil {
			push(*c.After)
		}
	}, func(err error) {
		s.logger.Warn("draft subscription for websocket stopped", zap.Error(err))
		cancel()
	})
	if err != nil {
		s.logger.Error("failed to subscribe websocket to draft", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case d := <-latest:
			payload, err := json.Marshal(wsMessage{Type: "draft", Draft: d})
			if err != nil {
				s.logger.Error("failed to encode draft", zap.Error(err))
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}
