package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/response"
	"github.com/stemsi/exstem-agent/internal/service"
	"github.com/stemsi/exstem-agent/internal/validator"
	ws "github.com/stemsi/exstem-agent/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams timer ticks and attempt events to the UI and accepts
// answer edits and Next over the same connection.
type WSHandler struct {
	attempt  Attempt
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempt Attempt, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempt:  attempt,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempt/stream
// Sends a snapshot on connect, then every session event.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("remote", c.ClientIP()).Logger()
	wsLog.Info().Msg("UI connected")

	events, unsubscribe := h.attempt.Subscribe()
	defer unsubscribe()

	h.writeSnapshot(conn)

	go h.pump(conn, events, wsLog)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if fields := validator.Struct(&msg); fields != nil {
			_ = conn.WriteError(string(response.ErrValidation), joinFields(fields))
			continue
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, &msg)
		case ws.ActionNext:
			// Runs beside the reader so a repeated Next is seen as in flight
			// and ignored instead of queued behind the first one.
			go h.handleNext(conn, wsLog)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.Response{Event: ws.EventPong})
		}
	}
}

// pump forwards session events until the subscription is closed or the
// connection fails.
func (h *WSHandler) pump(conn *ws.Conn, events <-chan service.Event, log zerolog.Logger) {
	for e := range events {
		if err := conn.WriteEvent(ws.Event(e.Type), e.Data); err != nil {
			log.Debug().Err(err).Msg("Event write failed")
			_ = conn.Close()
			return
		}
	}
}

func (h *WSHandler) writeSnapshot(conn *ws.Conn) {
	view, err := h.attempt.View()
	if err != nil {
		writeWSError(conn, err)
		return
	}
	_ = conn.WriteEvent(ws.EventSnapshot, view)
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, msg *ws.RequestPayload) {
	if msg.QuestionID == "" {
		_ = conn.WriteError(string(response.ErrValidation), "question_id is required")
		return
	}

	answer, err := h.attempt.EditAnswer(context.Background(), msg.QuestionID, msg.Answer)
	if err != nil {
		writeWSError(conn, err)
		return
	}
	_ = conn.WriteEvent(ws.EventSaved, map[string]interface{}{
		"question_id": msg.QuestionID,
		"answer":      answer.WireValue(),
		"blank":       answer.Blank(),
	})
}

func (h *WSHandler) handleNext(conn *ws.Conn, log zerolog.Logger) {
	outcome, err := h.attempt.AdvanceOrSubmit(context.Background(), false)
	if err != nil {
		log.Warn().Err(err).Msg("Manual advance failed")
		writeWSError(conn, err)
		return
	}
	_ = conn.WriteEvent(ws.EventOutcome, map[string]service.Outcome{"outcome": outcome})
}

func writeWSError(conn *ws.Conn, err error) {
	_, code := classify(err)
	_ = conn.WriteError(string(code), response.GetMessage(code))
}

func joinFields(fields map[string]string) string {
	msgs := make([]string, 0, len(fields))
	for _, m := range fields {
		msgs = append(msgs, m)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
