package tally

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zsiec/atemtally/internal/certs"
)

func TestNewServerValidation(t *testing.T) {
	t.Parallel()
	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(nil, nil)

	if _, err := NewServer(ServerConfig{Addr: ":0", Hub: hub}); err == nil {
		t.Error("missing cert accepted")
	}
	if _, err := NewServer(ServerConfig{Cert: cert, Hub: hub}); err == nil {
		t.Error("missing addr accepted")
	}
	if _, err := NewServer(ServerConfig{Addr: ":0", Cert: cert}); err == nil {
		t.Error("missing hub accepted")
	}
}

func TestServerDeliversFrames(t *testing.T) {
	t.Parallel()
	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(nil, nil)
	hub.Broadcast(Frame{Program: 1, Tally: []uint8{0x01}})

	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Cert: cert, Hub: hub})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	client, err := Dial(ctx, srv.Addr().String(), certs.PinnedClientConfig(cert.Fingerprint))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	first, err := client.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Program != 1 || !first.ProgramTally(1) {
		t.Errorf("replayed frame = %+v", first)
	}

	hub.Broadcast(Frame{Program: 2, Tally: []uint8{0x00, 0x01}})
	second, err := client.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Program != 2 || !second.ProgramTally(2) {
		t.Errorf("live frame = %+v", second)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWebSocketSubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil, nil)
	hub.Broadcast(Frame{Program: 4, Tally: []uint8{0x01}})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := NewWebSocketSubscriber(conn, nil)
		hub.Add(sub, "websocket")
		defer hub.Remove(sub.ID())
		sub.Run(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Program int          `json:"program"`
		Inputs  []InputTally `json:"inputs"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Program != 4 || len(msg.Inputs) != 1 || !msg.Inputs[0].Program {
		t.Errorf("msg = %+v", msg)
	}
}
