package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avdeyev/matchlink-server/internal/auth"
	"github.com/avdeyev/matchlink-server/internal/core"
	"github.com/avdeyev/matchlink-server/internal/proto"
)

const (
	// helloTimeout bounds how long a fresh connection may stay
	// unauthenticated before it is dropped.
	helloTimeout = 10 * time.Second

	// msgRateLimit caps chat messages per connection per minute.
	msgRateLimit = 120
)

// WSHandler upgrades HTTP connections, authenticates them, and bridges
// them to the hub as core.Client instances.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// The first frame must be a hello carrying a valid token. An
	// unresolvable identity rejects the connection before it touches
	// the presence registry.
	identity, err := h.handshake(ctx, conn)
	if err != nil {
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "authentication required"},
		})
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		h.log.Warn().Err(err).Msg("ws handshake rejected")
		return
	}

	client := core.NewClient(uuid.NewString(), identity.UserID, identity.Username)
	h.hub.Connect(client)
	// Disconnect runs on every exit path: registry cleanup and
	// conversation-group leave must never be skipped.
	defer h.hub.Disconnect(client.ConnID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return nil, err
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, errors.New("first frame must be hello")
	}

	hello, err := decodeHello(inbound)
	if err != nil {
		return nil, err
	}
	return h.auth.ResolveIdentity(hello.Token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(msgRateLimit)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		protoErr := h.dispatch(ctx, conn, client, inbound, limiter)
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); err != nil {
				return err
			}
		}
	}
}

// dispatch maps one inbound frame to a hub call. A non-nil return is a
// per-frame protocol error answered on this connection only.
func (h *WSHandler) dispatch(ctx context.Context, _ *websocket.Conn, client *core.Client, inbound proto.Inbound, limiter *rateLimiter) *proto.Error {
	switch inbound.Type {
	case proto.InboundTypeHello:
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}

	case proto.InboundTypeOpen:
		open, err := decodeOpen(inbound)
		if err != nil {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed open frame"}
		}
		if err := h.hub.OpenConversation(ctx, client.ConnID, open.PeerID); err != nil {
			return errorToProto(err)
		}
		return nil

	case proto.InboundTypeClose:
		h.hub.CloseConversation(client.ConnID)
		return nil

	case proto.InboundTypeMsg:
		msg, err := decodeMsg(inbound)
		if err != nil {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed msg frame"}
		}
		if !limiter.allow() {
			return &proto.Error{Code: "rate_limited", Msg: "too many messages"}
		}
		if err := h.hub.SendMessage(ctx, client.ConnID, msg.To, msg.Text); err != nil {
			return errorToProto(err)
		}
		return nil

	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
