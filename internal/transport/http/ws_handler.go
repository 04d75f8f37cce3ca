package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

type WSHandler struct {
	service  *app.BattleService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type findMatchPayload struct {
	Floor int `json:"floor"`
}

type answerPayload struct {
	BattleID      string `json:"battleId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        int    `json:"answer"`
	TimeRemaining int    `json:"timeRemaining"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// battle engine. The connection announces its player through the odId
// query parameter; closing the socket is the implicit unregister.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	odID := r.URL.Query().Get("odId")
	if odID == "" {
		http.Error(w, "missing odId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	player := h.service.Announce(odID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range player.Send {
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "find_match":
			var payload findMatchPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.service.NotifyError(odID, "invalid find_match payload")
				continue
			}
			if err := h.service.SeekMatch(r.Context(), odID, payload.Floor); err != nil {
				h.service.NotifyError(odID, err.Error())
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.service.NotifyError(odID, "invalid answer payload")
				continue
			}
			err := h.service.SubmitAnswer(r.Context(), odID, payload.BattleID,
				payload.QuestionIndex, payload.Answer, payload.TimeRemaining)
			switch {
			case errors.Is(err, domain.ErrStaleRound):
				// expected race with timeout advancement; the client was behind
			case errors.Is(err, domain.ErrSessionNotFound):
				h.service.NotifyError(odID, "battle not found")
			case err != nil:
				h.service.NotifyError(odID, err.Error())
			}
		case "leave_queue":
			h.service.LeaveQueue(odID)
		case "join":
			// Identity already arrived via odId; acknowledge again for
			// clients that send an explicit join.
			h.service.Rejoin(odID)
		default:
			h.service.NotifyError(odID, "unsupported message type")
		}
	}

	h.service.Disconnect(player)
	<-writerDone
}
