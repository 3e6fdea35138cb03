package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auralabs/go-aura/pkg/audioio"
	"github.com/auralabs/go-aura/pkg/call"
	"github.com/auralabs/go-aura/pkg/inference"
	"github.com/auralabs/go-aura/pkg/player"
	"github.com/auralabs/go-aura/pkg/recorder"
	"github.com/auralabs/go-aura/pkg/stt"
	"github.com/auralabs/go-aura/pkg/tts"
)

func testFactory() SessionFactory {
	return func() (*call.Session, error) {
		capture := audioio.NewMockCapture(audioio.Config{
			Backend:       audioio.BackendMock,
			SampleRate:    16000,
			Channels:      1,
			ChunkDuration: 10 * time.Millisecond,
		}, nil, audioio.WithSineWave(440, 0.3))
		return call.NewSession(call.Deps{
			Recorder:    recorder.New(capture),
			Transcriber: stt.NewMock("hello"),
			Responder:   inference.NewMock(),
			Synthesizer: tts.NewMock(),
			Player:      player.NewMockPlayer(),
		})
	}
}

func doJSON(t *testing.T, s *Server, method, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	payload := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, path, body, err)
		}
	}
	return resp.StatusCode, payload
}

func TestCallLifecycle(t *testing.T) {
	s := NewServer(testFactory())

	code, snap := doJSON(t, s, "POST", "/api/call")
	if code != http.StatusCreated {
		t.Fatalf("start call status = %d", code)
	}
	if snap["id"] == "" {
		t.Error("snapshot missing session id")
	}

	code, _ = doJSON(t, s, "POST", "/api/call")
	if code != http.StatusConflict {
		t.Errorf("second call status = %d, want 409", code)
	}

	code, _ = doJSON(t, s, "GET", "/api/call")
	if code != http.StatusOK {
		t.Errorf("get call status = %d", code)
	}

	code, _ = doJSON(t, s, "POST", "/api/call/turn")
	if code != http.StatusAccepted {
		t.Errorf("start turn status = %d", code)
	}

	code, _ = doJSON(t, s, "POST", "/api/call/turn/cancel")
	if code != http.StatusOK {
		t.Errorf("cancel turn status = %d", code)
	}

	code, payload := doJSON(t, s, "DELETE", "/api/call")
	if code != http.StatusOK || payload["ended"] != true {
		t.Errorf("end call: %d %v", code, payload)
	}

	// The session clears once the event stream drains.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		code, _ = doJSON(t, s, "GET", "/api/call")
		if code == http.StatusNotFound {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("session never cleared after hangup")
}

func TestCommandsWithoutCall(t *testing.T) {
	s := NewServer(testFactory())

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/call"},
		{"DELETE", "/api/call"},
		{"POST", "/api/call/turn"},
		{"POST", "/api/call/turn/end"},
		{"POST", "/api/call/turn/cancel"},
		{"POST", "/api/call/mute"},
		{"GET", "/api/metrics"},
	}
	for _, p := range paths {
		code, _ := doJSON(t, s, p.method, p.path)
		if code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", p.method, p.path, code)
		}
	}
}

func TestMuteConflicts(t *testing.T) {
	s := NewServer(testFactory())

	if code, _ := doJSON(t, s, "POST", "/api/call"); code != http.StatusCreated {
		t.Fatalf("start call status = %d", code)
	}

	code, payload := doJSON(t, s, "POST", "/api/call/mute")
	if code != http.StatusOK || payload["muted"] != true {
		t.Fatalf("mute: %d %v", code, payload)
	}

	code, payload = doJSON(t, s, "POST", "/api/call/turn")
	if code != http.StatusConflict {
		t.Errorf("start turn while muted: %d %v", code, payload)
	}

	code, payload = doJSON(t, s, "POST", "/api/call/mute")
	if code != http.StatusOK || payload["muted"] != false {
		t.Fatalf("unmute: %d %v", code, payload)
	}

	if code, _ = doJSON(t, s, "POST", "/api/call/turn"); code != http.StatusAccepted {
		t.Errorf("start turn after unmute: %d", code)
	}
}

func TestTurnCommandConflicts(t *testing.T) {
	s := NewServer(testFactory())

	if code, _ := doJSON(t, s, "POST", "/api/call"); code != http.StatusCreated {
		t.Fatal("start call failed")
	}

	// Ending an utterance with no turn in flight is a conflict.
	code, _ := doJSON(t, s, "POST", "/api/call/turn/end")
	if code != http.StatusConflict {
		t.Errorf("end utterance without turn: %d", code)
	}

	if code, _ = doJSON(t, s, "POST", "/api/call/turn"); code != http.StatusAccepted {
		t.Fatal("start turn failed")
	}
	code, _ = doJSON(t, s, "POST", "/api/call/turn")
	if code != http.StatusConflict {
		t.Errorf("double start turn: %d", code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	s := NewServer(testFactory())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	addr := ln.Addr().String()
	base := "http://" + addr

	// Wait for the listener to accept.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := http.Get(base + "/api/call"); err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(base+"/api/call", "application/json", nil)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	resp.Body.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First frame is the state snapshot for late joiners.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap map[string]any
	if err := json.Unmarshal(frame, &snap); err != nil {
		t.Fatalf("snapshot frame: %v", err)
	}
	if snap["type"] != "snapshot" || snap["session"] == nil {
		t.Fatalf("snapshot frame = %s", frame)
	}

	resp, err = http.Post(base+"/api/call/turn", "application/json", nil)
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	resp.Body.Close()

	// Expect the capturing transition on the stream.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		var ev map[string]any
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("event frame %q: %v", frame, err)
		}
		if ev["type"] == string(call.EventTurnStateChanged) &&
			ev["stage"] == string(call.StageCapturing) {
			break
		}
	}

	// Hang up and expect session_ended before the server closes us.
	req, _ := http.NewRequest("DELETE", base+"/api/call", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("end call: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if strings.Contains(string(frame), string(call.EventSessionEnded)) {
			return
		}
	}
}
