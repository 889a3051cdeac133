package streaming

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/chain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(quietLogger())
	hub.SetHeartbeat(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return event
}

func TestPublishLog(t *testing.T) {
	hub, conn := startHub(t)

	hub.PublishLog(chain.Log{Contract: "Bet", Name: "BetPlaced", BlockTime: time.Unix(1_700_000_000, 0)})

	event := readEvent(t, conn)
	if event.Type != "BetPlaced" || event.Contract != "Bet" {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestUnsubscribe(t *testing.T) {
	hub, conn := startHub(t)

	msg := `{"type":"unsubscribe","events":["BetPlaced"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	// Wait for the unsubscribe to be applied.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var client *Client
		hub.mu.RLock()
		for c := range hub.clients {
			client = c
		}
		hub.mu.RUnlock()
		if client != nil && !client.isSubscribed("BetPlaced") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("unsubscribe never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishLog(chain.Log{Contract: "Bet", Name: "BetPlaced"})
	hub.PublishLog(chain.Log{Contract: "Bet", Name: "BetSettled"})

	event := readEvent(t, conn)
	if event.Type != "BetSettled" {
		t.Errorf("Expected only BetSettled, got %s", event.Type)
	}
}

func TestBroadcastStatus(t *testing.T) {
	hub, conn := startHub(t)

	hub.BroadcastStatus(map[string]string{"state": "ready"})

	event := readEvent(t, conn)
	if event.Type != EventTypeStatus {
		t.Errorf("Expected status event, got %s", event.Type)
	}
}
