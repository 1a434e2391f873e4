package main

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer lets the test read server output while the serve
// goroutine is still writing to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startTestServer(t *testing.T) (*Server, *syncBuffer, chan error) {
	t.Helper()

	out := &syncBuffer{}
	srv := NewServer("127.0.0.1", 0, out)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve()
	}()
	// Give Serve a moment to reach Accept.
	time.Sleep(50 * time.Millisecond)
	return srv, out, done
}

func waitServe(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestReceiveAndDisconnect(t *testing.T) {
	srv, out, done := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	peer := conn.LocalAddr().String()

	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Failed to write to server: %v", err)
	}
	conn.Close()

	waitServe(t, done)
	srv.Shutdown()

	got := out.String()
	for _, want := range []string{
		"Waiting for a connection...",
		"Connection from " + peer,
		"Received: hello\n",
		"Client disconnected",
		"Server shut down",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestMultipleWritesArePrintedInOrder(t *testing.T) {
	srv, out, done := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	chunks := []string{"first ", "second ", "third\n"}
	for _, chunk := range chunks {
		if _, err := conn.Write([]byte(chunk)); err != nil {
			t.Fatalf("Failed to write %q: %v", chunk, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	conn.Close()

	waitServe(t, done)

	got := out.String()
	last := 0
	for _, chunk := range chunks {
		idx := strings.Index(got[last:], chunk)
		if idx < 0 {
			t.Fatalf("output missing %q in order:\n%s", chunk, got)
		}
		last += idx + len(chunk)
	}
}

func TestDisconnectWithoutData(t *testing.T) {
	srv, out, done := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	conn.Close()

	waitServe(t, done)
	srv.Shutdown()

	got := out.String()
	if !strings.Contains(got, "Client disconnected") {
		t.Fatalf("output missing disconnect notice:\n%s", got)
	}
	if strings.Contains(got, "Received:") {
		t.Fatalf("output reports data that was never sent:\n%s", got)
	}
}

func TestBindFailureWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to occupy a port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	out := &syncBuffer{}
	srv := NewServer("127.0.0.1", port, out)
	if err := srv.Start(); err == nil {
		srv.Shutdown()
		t.Fatal("Start succeeded on a port that is already bound")
	}

	if strings.Contains(out.String(), "Waiting for a connection...") {
		t.Fatalf("server announced waiting despite failed bind:\n%s", out.String())
	}
}

func TestShutdownUnblocksAccept(t *testing.T) {
	srv, out, done := startTestServer(t)

	srv.Shutdown()
	waitServe(t, done)

	got := out.String()
	if !strings.Contains(got, "Server shut down") {
		t.Fatalf("output missing shutdown notice:\n%s", got)
	}
	if strings.Contains(got, "accept") {
		t.Fatalf("shutdown was reported as an accept error:\n%s", got)
	}
}

func TestShutdownUnblocksRead(t *testing.T) {
	srv, out, done := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()
	// Let the server accept and block in Read.
	time.Sleep(50 * time.Millisecond)

	srv.Shutdown()
	waitServe(t, done)

	got := out.String()
	if !strings.Contains(got, "Connection from ") {
		t.Fatalf("output missing connection announcement:\n%s", got)
	}
	if strings.Contains(got, "Read error") {
		t.Fatalf("shutdown was reported as a read error:\n%s", got)
	}
	if !strings.Contains(got, "Server shut down") {
		t.Fatalf("output missing shutdown notice:\n%s", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, out, done := startTestServer(t)

	srv.Shutdown()
	srv.Shutdown()
	waitServe(t, done)

	if n := strings.Count(out.String(), "Server shut down"); n != 1 {
		t.Fatalf("shutdown notice printed %d times, want 1", n)
	}
}
