// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pitchd/internal/pitch"
	"pitchd/pkg/utils"
)

type failingTransport struct{ err error }

func (f failingTransport) Send(any) error { return f.err }
func (f failingTransport) Close() error   { return f.err }

func voicedEvent(hz float64) pitch.Event {
	return pitch.Event{
		Estimate:  pitch.Estimate{Frequency: hz, Confidence: 0.95, Voiced: true},
		Timestamp: 1.5,
		Latency:   200 * time.Microsecond,
	}
}

func TestMulti(t *testing.T) {
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	boom := errors.New("boom")

	m := Multi(a, failingTransport{boom}, b)
	if err := m.Send("hello"); !errors.Is(err, boom) {
		t.Errorf("Send error = %v, want boom", err)
	}
	if len(a.Messages()) != 1 || len(b.Messages()) != 1 {
		t.Error("a failing transport stopped the fan-out")
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close error = %v, want boom", err)
	}
	if !a.Closed || !b.Closed {
		t.Error("not every transport was closed")
	}
}

func TestChannelTransport(t *testing.T) {
	c := NewChannelTransport(2)

	for i := range 4 {
		if err := c.Send(i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if c.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", c.Dropped())
	}
	if got := <-c.Messages(); got != 0 {
		t.Errorf("first message = %v, want 0", got)
	}

	c.Close()
	c.Close()
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
	if err := c.Send(5); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}

	if d := Multi(c, &utils.MockTransport{}).(DropCounter).Dropped(); d != 2 {
		t.Errorf("Multi Dropped() = %d, want 2", d)
	}
}

func TestChannelTransportSendHotPath(t *testing.T) {
	c := NewChannelTransport(1)
	ev := voicedEvent(220)
	sink := EventSink{Transport: c}
	sink.Emit(ev)

	allocs := testing.AllocsPerRun(100, func() {
		select {
		case <-c.Messages():
		default:
		}
		c.Send(nil)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Send, got %.1f", allocs)
	}
}

func TestEventSink(t *testing.T) {
	mock := &utils.MockTransport{}
	EventSink{Transport: mock}.Emit(voicedEvent(330))
	EventSink{Transport: failingTransport{errors.New("gone")}}.Emit(voicedEvent(330))

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if ev, ok := msgs[0].(pitch.Event); !ok || ev.Frequency != 330 {
		t.Errorf("message = %#v", msgs[0])
	}
}

type nopTransport struct{}

func (nopTransport) Send(any) error { return nil }
func (nopTransport) Close() error   { return nil }

func TestEventSinkHotPath(t *testing.T) {
	var sink pitch.Sink = EventSink{Transport: nopTransport{}}
	ev := voicedEvent(220)

	// The boxed event handed to Send is the only allocation.
	allocs := testing.AllocsPerRun(100, func() {
		sink.Emit(ev)
	})
	if allocs > 1 {
		t.Errorf("Expected at most one allocation per Emit, got %.1f", allocs)
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(voicedEvent(100)); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := lt.Send(func() {}); err != nil {
		t.Errorf("Send of an unencodable value: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketTransport(t *testing.T) {
	extra := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "pitchd_windows_total 3\n")
	})
	wst, err := NewWebSocketTransport("127.0.0.1:0", map[string]http.Handler{"/metrics": extra})
	if err != nil {
		t.Fatalf("NewWebSocketTransport: %v", err)
	}
	defer wst.Close()

	base := wst.Addr().String()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+base+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return wst.Clients() == 1 })

	if err := wst.Send(voicedEvent(220)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	for _, want := range []string{`"type":"pitch"`, `"pitch":220`, `"timestamp":1.5`} {
		if !strings.Contains(string(payload), want) {
			t.Errorf("frame %s missing %s", payload, want)
		}
	}

	resp, err := http.Get("http://" + base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "pitchd_windows_total") {
		t.Errorf("/metrics body = %q", body)
	}

	if err := wst.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := wst.Send(voicedEvent(220)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestWebSocketTransportHandleMessages(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewWebSocketTransport: %v", err)
	}
	defer wst.Close()

	received := make(chan string, 2)
	wst.HandleMessages(func(payload []byte) error {
		received <- string(payload)
		if strings.Contains(string(payload), "bad") {
			return errors.New("rejected")
		}
		return nil
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, msg := range []string{`{"bad":true}`, `{"threshold":0.2}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	for _, want := range []string{`{"bad":true}`, `{"threshold":0.2}`} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("handler got %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	// A rejected message does not drop the client.
	if wst.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", wst.Clients())
	}
}

func TestNewWebSocketTransportBadAddr(t *testing.T) {
	if _, err := NewWebSocketTransport("256.0.0.1:99999", nil); err == nil {
		t.Error("expected listen error")
	}
}
