package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func fastWSConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectAttempts = 2
	cfg.SubscribeTimeout = time.Second
	return &cfg
}

// confirmSubscribe reads one logsSubscribe request and confirms it with subID.
func confirmSubscribe(t *testing.T, c *websocket.Conn, subID int64) bool {
	t.Helper()
	_, msg, err := c.ReadMessage()
	if err != nil {
		return false
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return false
	}
	if req.Method != "logsSubscribe" {
		t.Errorf("expected logsSubscribe, got %s", req.Method)
	}
	return c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: subID}) == nil
}

func sendNotification(c *websocket.Conn, subID int64, signature string, slot int64) error {
	return c.WriteJSON(wsNotification{
		JSONRPC: "2.0",
		Method:  "logsNotification",
		Params: &wsNotificationParams{
			Subscription: subID,
			Result: wsNotificationResult{
				Context: &wsContext{Slot: slot},
				Value: wsLogsValue{
					Signature: signature,
					Logs:      []string{"Program log: Instruction: Create"},
				},
			},
		},
	})
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if !confirmSubscribe(t, c, 12345) {
			return
		}
		time.Sleep(50 * time.Millisecond)
		if err := sendNotification(c, 12345, "testsig", 100); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}
		drain(c)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" || notif.Slot != 100 || len(notif.Logs) != 1 {
			t.Errorf("unexpected notification %+v", notif)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_CloseClosesSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if confirmSubscribe(t, c, 7) {
			drain(c)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	ch, err := client.SubscribeLogs(ctx, LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}
	if client.Err() != nil {
		t.Errorf("clean close should leave Err nil, got %v", client.Err())
	}

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_ResubscribesAfterReconnect(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if conns.Add(1) == 1 {
			// First connection drops right after confirming.
			confirmSubscribe(t, c, 1)
			return
		}
		if !confirmSubscribe(t, c, 2) {
			return
		}
		time.Sleep(20 * time.Millisecond)
		sendNotification(c, 2, "after-reconnect", 200)
		drain(c)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), fastWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"prog"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "after-reconnect" {
			t.Errorf("unexpected signature %s", notif.Signature)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for notification after reconnect")
	}
}

func TestWSClient_ReconnectExhausted(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		confirmSubscribe(t, c, 1)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), fastWSConfig(), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel close, got notification")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("channel not closed after reconnect attempts exhausted")
	}

	if !errors.Is(client.Err(), ErrReconnectExhausted) {
		t.Errorf("expected ErrReconnectExhausted, got %v", client.Err())
	}
	if got := conns.Load(); got != 3 {
		t.Errorf("expected 1 connection + 2 reconnect attempts, got %d", got)
	}
}
