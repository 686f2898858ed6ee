package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/avdeyev/matchlink-server/internal/auth"
	"github.com/avdeyev/matchlink-server/internal/config"
	"github.com/avdeyev/matchlink-server/internal/core"
	"github.com/avdeyev/matchlink-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	auth *auth.Service
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(st, &disabledLogger)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(hub, authService, st, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService}
}

// registerUser creates an account over the REST API and returns its token
// and resolved user id.
func (e *testEnv) registerUser(t *testing.T, username string) (string, int64) {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Username: username, Password: "password123"})
	resp, err := e.ts.Client().Post(e.ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Fatalf("register %s: unexpected status %d", username, resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	identity, err := e.auth.ResolveIdentity(authResp.Token)
	if err != nil {
		t.Fatalf("resolve registered identity: %v", err)
	}
	return authResp.Token, identity.UserID
}

// dialWS opens a websocket connection and completes the hello handshake.
func (e *testEnv) dialWS(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	sendFrame(ctx, t, conn, "hello", map[string]any{"token": token})
	return conn
}

func sendFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, _ := json.Marshal(data)
	if err := wsjson.Write(ctx, conn, map[string]any{"type": msgType, "data": json.RawMessage(payload)}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// mustEventFrame reads frames until one with the wanted event name arrives.
func mustEventFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Type == "event" && frame.Event == event {
			return frame
		}
	}
}

// mustErrorFrame reads frames until an error with the wanted code arrives.
func mustErrorFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, code string) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for error %s: %v", code, err)
		}
		if frame.Type == "error" && frame.Error != nil && frame.Error.Code == code {
			return frame
		}
	}
}

func decodeData(t *testing.T, raw json.RawMessage, target any) {
	t.Helper()
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
}
