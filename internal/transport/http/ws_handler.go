package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"skillbridge-quiz-service/internal/app"
	"skillbridge-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler drives one attempt session per websocket connection.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
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

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	OptionKey     string `json:"optionKey"`
}

type navigatePayload struct {
	Delta int `json:"delta"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// attempt use cases. Query params: user (wallet address), type
// ("entry"|"course"), and courseId for course quizzes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userAddress := r.URL.Query().Get("user")
	kind := domain.AssessmentKind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = domain.KindEntry
	}
	courseID := r.URL.Query().Get("courseId")

	if userAddress == "" || (kind != domain.KindEntry && kind != domain.KindCourse) {
		http.Error(w, "missing user or invalid type", http.StatusBadRequest)
		return
	}
	if kind == domain.KindCourse && courseID == "" {
		http.Error(w, "missing courseId for course quiz", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	key, opened := h.service.Open(r.Context(), userAddress, kind, courseID)

	updates, cancel, err := h.service.Subscribe(r.Context(), key)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer h.service.Leave(r.Context(), key)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "opened", Payload: opened}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		ctx := r.Context()
		switch inbound.Type {
		case "start":
			if _, err := h.service.Start(ctx, userAddress, kind, courseID); err != nil {
				send <- errorMessage(err)
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if _, err := h.service.RecordAnswer(ctx, key, payload.QuestionIndex, payload.OptionKey); err != nil {
				send <- errorMessage(err)
			}
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid navigate payload"}}
				continue
			}
			if _, err := h.service.Navigate(ctx, key, payload.Delta); err != nil {
				send <- errorMessage(err)
			}
		case "submit":
			if _, err := h.service.Submit(ctx, key); err != nil {
				send <- errorMessage(err)
			}
		case "retryAward":
			if _, err := h.service.RetryEntryAward(ctx, key); err != nil {
				send <- errorMessage(err)
			}
		case "mint":
			if _, err := h.service.RequestMint(ctx, key); err != nil {
				send <- errorMessage(err)
			}
		case "restart":
			if _, err := h.service.Restart(ctx, key); err != nil {
				send <- errorMessage(err)
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// errorMessage maps a use-case error onto the wire, flagging whether the
// user should be offered a retry. A duplicate mint trigger is not
// retryable as such: the original request is still running.
func errorMessage(err error) outboundMessage[any] {
	retryable := !app.IsNoRetry(err) && !errors.Is(err, domain.ErrMintAlreadyInFlight)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{
		Message:   err.Error(),
		Retryable: retryable,
	}}
}
