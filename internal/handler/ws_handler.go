package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go-pos-ws/internal/checkout"
	"go-pos-ws/internal/model"
	"go-pos-ws/internal/notify"
	"go-pos-ws/internal/service"
	"go-pos-ws/internal/ws"
	"go-pos-ws/pkg/validator"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	MessageKey = "key"

	EventCartChanged        = "cart_changed"
	EventSuggestionsChanged = "suggestions_changed"
	EventCheckoutResult     = "checkout_result"
	EventKeyResult          = "key_result"
)

var errUnknownMessage = errors.New("unknown message type")

// ClientMessage is what a terminal UI sends over the websocket.
type ClientMessage struct {
	Type string `json:"type"`
	KeyRequest
}

// DecodeClientMessage parses one websocket frame into a key event request.
func DecodeClientMessage(data []byte) (KeyRequest, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return KeyRequest{}, err
	}
	if msg.Type != MessageKey {
		return KeyRequest{}, errUnknownMessage
	}
	if err := validator.FirstError(&msg.KeyRequest); err != nil {
		return KeyRequest{}, err
	}
	return msg.KeyRequest, nil
}

type WSHandler struct {
	hub     *ws.Hub
	service service.PosService
	done    <-chan struct{}
	timeout time.Duration
	log     *zap.Logger
}

func NewWSHandler(hub *ws.Hub, s service.PosService, done <-chan struct{}, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{hub: hub, service: s, done: done, timeout: 5 * time.Second, log: log.Named("ws")}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (h *WSHandler) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.SendStatus(fiber.StatusUpgradeRequired)
}

func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		select {
		case h.hub.Register <- c:
		case <-h.done:
			return
		}
		defer func() {
			select {
			case h.hub.Unregister <- c:
			case <-h.done:
			}
		}()

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				break
			}
			req, err := DecodeClientMessage(data)
			if err != nil {
				h.log.Debug("ignoring websocket message", zap.Error(err))
				continue
			}
			h.handleKey(req)
		}
	})
}

func (h *WSHandler) handleKey(req KeyRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.service.HandleKey(ctx, req.Event())
	if err != nil {
		h.log.Warn("failed to handle key event", zap.Error(err))
		return
	}
	// Writes to a connection belong to the hub, so results go out as events.
	if res.SuppressDefault || res.External() {
		h.hub.Publish(EventKeyResult, res)
	}
}

// CheckoutPayload is the websocket form of a checkout result.
type CheckoutPayload struct {
	OK    bool              `json:"ok"`
	Sale  *model.SaleRecord `json:"sale,omitempty"`
	Error string            `json:"error,omitempty"`
}

// Forward publishes the service's change notifications to pub. Call it before
// the service starts.
func Forward(s service.PosService, pub notify.Publisher) {
	s.OnCartChanged(func(v service.CartView) {
		pub.Publish(EventCartChanged, v)
	})
	s.OnSuggestionsChanged(func(suggestions []model.Suggestion) {
		pub.Publish(EventSuggestionsChanged, suggestions)
	})
	s.OnCheckoutResult(func(r checkout.Result) {
		payload := CheckoutPayload{OK: r.OK(), Sale: r.Sale}
		if r.Err != nil {
			payload.Error = r.Err.Error()
		}
		pub.Publish(EventCheckoutResult, payload)
	})
}
