package tracerelay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hankhank/exys-sub000/internal/harness"
)

func TestBroadcastReachesClient(t *testing.T) {
	relay := New()
	server := httptest.NewServer(relay)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && relay.ClientCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if relay.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", relay.ClientCount())
	}

	step := harness.Step{
		Inputs:    map[string]float64{"a": 3},
		Observers: map[string]float64{"s": 7},
	}
	if err := relay.Broadcast(step); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var got harness.Step
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Observers["s"] != 7 {
		t.Errorf("observers[s] = %v, want 7", got.Observers["s"])
	}
}
