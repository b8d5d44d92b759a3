package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// startBackend runs a line server that answers every line with
// "<name>:<line>".
func startBackend(t *testing.T, name string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					fmt.Fprintf(c, "%s:%s\n", name, sc.Text())
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func startProxy(t *testing.T, backends ...string) *Proxy {
	t.Helper()
	p, err := New("127.0.0.1:0", backends)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Listen(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return p
}

func roundTrip(t *testing.T, addr, line string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := fmt.Fprintf(c, "%s\n", line); err != nil {
		t.Fatal(err)
	}
	reply, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	return strings.TrimSpace(reply)
}

func TestNewRequiresBackends(t *testing.T) {
	if _, err := New("127.0.0.1:0", nil); !errors.Is(err, ErrNoBackends) {
		t.Fatalf("New without backends = %v", err)
	}
}

func TestRoundRobin(t *testing.T) {
	a := startBackend(t, "a")
	b := startBackend(t, "b")
	p := startProxy(t, a, b)

	want := []string{"a:x", "b:x", "a:x", "b:x"}
	for i, w := range want {
		if got := roundTrip(t, p.Addr(), "x"); got != w {
			t.Fatalf("connection %d answered %q, want %q", i, got, w)
		}
	}
}

func TestSessionRelaysBothWays(t *testing.T) {
	p := startProxy(t, startBackend(t, "a"))
	c, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(3 * time.Second))
	r := bufio.NewReader(c)
	for _, line := range []string{"one", "two", "three"} {
		fmt.Fprintf(c, "%s\n", line)
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(got) != "a:"+line {
			t.Fatalf("got %q", got)
		}
	}
}

func TestDeadBackendKeepsRotation(t *testing.T) {
	// Reserve a port and close it so dials are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := ln.Addr().String()
	ln.Close()

	live := startBackend(t, "live")
	p := startProxy(t, dead, live)

	// First client is paired with the dead backend and gets closed.
	c, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	data, err := io.ReadAll(c)
	c.Close()
	if err != nil || len(data) != 0 {
		t.Fatalf("client of dead backend: %q, %v", data, err)
	}

	if got := roundTrip(t, p.Addr(), "y"); got != "live:y" {
		t.Fatalf("second connection answered %q", got)
	}
}

func TestBackendCloseEndsSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("bye\n"))
		c.Close()
	}()

	p := startProxy(t, ln.Addr().String())
	c, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	data, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bye\n" {
		t.Fatalf("got %q", data)
	}
}
