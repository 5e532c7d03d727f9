package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/core"
)

const eventWriteTimeout = 10 * time.Second

// Events streams engine events over a WebSocket.
type Events struct {
	events *core.Events
	logger zerolog.Logger
}

func NewEvents(events *core.Events, logger zerolog.Logger) *Events {
	return &Events{events: events, logger: logger.With().Str("component", "events-ws").Logger()}
}

// Stream sends each event as a JSON text message until the client goes away.
func (h *Events) Stream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin differs from Host when proxied through a dev UI.
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	// The client never sends; CloseRead handles pings and cancels ctx on close.
	ctx := ws.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for ev := range h.events.Subscribe(ctx) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		wctx, wcancel := context.WithTimeout(ctx, eventWriteTimeout)
		err = ws.Write(wctx, websocket.MessageText, data)
		wcancel()
		if err != nil {
			h.logger.Debug().Err(err).Msg("event stream closed")
			return
		}
	}
	ws.Close(websocket.StatusNormalClosure, "")
}
