// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTransport(t *testing.T) *WebSocketTransport {
	t.Helper()
	tr, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func dialTransport(t *testing.T, tr *WebSocketTransport) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/spectrum", tr.Addr())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s failed: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	// Registration happens after the handshake completes; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for tr.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestTransportBroadcastsFrames(t *testing.T) {
	tr := startTransport(t)
	conn := dialTransport(t, tr)

	sent := Frame{
		Frequencies:  []float64{0, 100, 200},
		MagnitudesDB: []float64{-90, -45, -12.5},
	}
	if err := tr.Send(sent); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame failed: %v", err)
	}

	var got Frame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if len(got.Frequencies) != 3 || got.Frequencies[1] != 100 {
		t.Errorf("frequencies = %v, want %v", got.Frequencies, sent.Frequencies)
	}
	if len(got.MagnitudesDB) != 3 || got.MagnitudesDB[2] != -12.5 {
		t.Errorf("magnitudes = %v, want %v", got.MagnitudesDB, sent.MagnitudesDB)
	}
}

func TestTransportRateLimitsSends(t *testing.T) {
	tr := startTransport(t)
	conn := dialTransport(t, tr)

	frame := Frame{Frequencies: []float64{0}, MagnitudesDB: []float64{-90}}
	for i := 0; i < 10; i++ {
		if err := tr.Send(frame); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	// Only the first of a burst inside the rate window goes out.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("first frame missing: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("rate-limited frame was delivered")
	}
}

func TestTransportDropsDisconnectedClients(t *testing.T) {
	tr := startTransport(t)
	conn := dialTransport(t, tr)

	conn.Close()

	frame := Frame{Frequencies: []float64{0}, MagnitudesDB: []float64{-90}}
	deadline := time.Now().Add(2 * time.Second)
	for tr.ClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnected client never removed")
		}
		tr.lastSend = time.Time{} // bypass the rate limit while polling
		if err := tr.Send(frame); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransportSendWithoutClients(t *testing.T) {
	tr := startTransport(t)
	if err := tr.Send(Frame{Frequencies: []float64{0}, MagnitudesDB: []float64{0}}); err != nil {
		t.Errorf("Send with no clients failed: %v", err)
	}
}

func TestTransportCloseIsIdempotentForClients(t *testing.T) {
	tr := startTransport(t)
	dialTransport(t, tr)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := tr.ClientCount(); n != 0 {
		t.Errorf("clients after close = %d, want 0", n)
	}
}
