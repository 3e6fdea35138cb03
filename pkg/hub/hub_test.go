package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// attach registers a bare client with the running hub and returns its send
// channel for inspection.
func attach(t *testing.T, h *Hub) *Client {
	t.Helper()
	client := &Client{hub: h, send: make(chan Message, 8)}
	select {
	case h.register <- client:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}
	return client
}

func TestBroadcastFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events")
	go h.Run(ctx)

	a := attach(t, h)
	b := attach(t, h)

	if err := h.BroadcastJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != JSONMessage {
				t.Errorf("message type = %v", msg.Type)
			}
			var payload map[string]string
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if payload["type"] != "ping" {
				t.Errorf("payload = %v", payload)
			}
		case <-time.After(time.Second):
			t.Fatal("client never received broadcast")
		}
	}
}

func TestWelcomeOnRegister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events", WithWelcome(func() []Message {
		return []Message{NewJSONMessage([]byte(`{"hello":true}`))}
	}))
	go h.Run(ctx)

	c := attach(t, h)
	select {
	case msg := <-c.send:
		if string(msg.Data) != `{"hello":true}` {
			t.Errorf("welcome frame = %s", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no welcome frame")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events")
	go h.Run(ctx)

	c := attach(t, h)
	select {
	case h.unregister <- c:
	case <-time.After(time.Second):
		t.Fatal("unregister timed out")
	}

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel still open after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel never closed")
	}

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", h.ClientCount())
	}
}

func TestShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("events")
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := attach(t, h)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub loop never exited")
	}

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel still open after shutdown")
		}
	default:
		t.Error("send channel not closed")
	}
}

func TestRegisterAfterShutdownReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("events")
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub loop never exited")
	}

	// With no loop reading register, NewClient must still return.
	registered := make(chan struct{})
	go func() {
		NewClient(h, nil)
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked after shutdown")
	}
}

func TestUnregisterAfterShutdownReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("events")
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := attach(t, h)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub loop never exited")
	}

	// The reader's exit path must not hang once the loop is gone.
	released := make(chan struct{})
	go func() {
		c.detach()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after shutdown")
	}
}

func TestSlowClientDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events")
	go h.Run(ctx)

	// A client with no buffer can never keep up.
	slow := &Client{hub: h, send: make(chan Message)}
	select {
	case h.register <- slow:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}

	h.Broadcast(NewJSONMessage([]byte(`{}`)))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("slow client never dropped")
}
