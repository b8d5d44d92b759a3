// Package proxy is a TCP round-robin load balancer: each accepted client
// is paired with one backend and bytes are relayed both ways without
// looking at them.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"blinkdb/internal/logging"
	"blinkdb/internal/netutil"
)

var plog = logging.For("proxy")

const (
	relayBufferSize = 4096
	dialTimeout     = 5 * time.Second
)

var ErrNoBackends = errors.New("proxy: no backends configured")

type Proxy struct {
	addr     string
	backends []string
	next     atomic.Uint64

	mu        sync.Mutex
	listener  net.Listener
	sessions  map[string]*session
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// session is one client paired with its backend.
type session struct {
	id      string
	client  net.Conn
	backend net.Conn
	once    sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		s.client.Close()
		if s.backend != nil {
			s.backend.Close()
		}
	})
}

func New(addr string, backends []string) (*Proxy, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	return &Proxy{
		addr:     addr,
		backends: append([]string(nil), backends...),
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}, nil
}

func (p *Proxy) Listen(ctx context.Context) error {
	ln, err := netutil.Listen(ctx, p.addr, false)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()
	plog.Info("proxy listening", "addr", ln.Addr().String(), "backends", p.backends)
	return nil
}

func (p *Proxy) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Serve accepts clients until ctx is cancelled or Stop is called, then
// waits for the open sessions to be torn down.
func (p *Proxy) Serve(ctx context.Context) error {
	p.mu.Lock()
	ln := p.listener
	p.mu.Unlock()
	if ln == nil {
		return errors.New("proxy: not listening")
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-p.done:
				p.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				p.wg.Wait()
				return nil
			}
			plog.Warn("accept error", "err", err)
			continue
		}
		p.wg.Add(1)
		go p.handle(nc)
	}
}

// Stop closes the listener and every open session.
func (p *Proxy) Stop() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		if p.listener != nil {
			p.listener.Close()
		}
		sessions := make([]*session, 0, len(p.sessions))
		for _, s := range p.sessions {
			sessions = append(sessions, s)
		}
		p.mu.Unlock()
		for _, s := range sessions {
			s.close()
		}
	})
}

// pick returns the next backend in strict rotation. A failed dial still
// consumes its turn.
func (p *Proxy) pick() string {
	n := p.next.Add(1) - 1
	return p.backends[n%uint64(len(p.backends))]
}

func (p *Proxy) handle(client net.Conn) {
	defer p.wg.Done()

	s := &session{id: uuid.NewString(), client: client}
	target := p.pick()
	backend, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		plog.Warn("backend unreachable", "session", s.id, "backend", target, "err", err)
		client.Close()
		return
	}
	s.backend = backend

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		s.close()
		return
	default:
	}
	p.sessions[s.id] = s
	p.mu.Unlock()

	plog.Debug("session opened", "session", s.id, "remote", client.RemoteAddr(), "backend", target)
	up, down := p.relay(s)
	plog.Debug("session closed", "session", s.id, "bytes_up", up, "bytes_down", down)

	p.mu.Lock()
	delete(p.sessions, s.id)
	p.mu.Unlock()
}

// relay copies in both directions and returns when either side is done,
// closing both connections.
func (p *Proxy) relay(s *session) (up, down int64) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		up = copyConn(s.backend, s.client)
		s.close()
	}()
	go func() {
		defer wg.Done()
		down = copyConn(s.client, s.backend)
		s.close()
	}()
	wg.Wait()
	return up, down
}

func copyConn(dst, src net.Conn) int64 {
	buf := make([]byte, relayBufferSize)
	// The wrappers hide ReadFrom/WriteTo so every copy goes through buf.
	n, err := io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		plog.Debug("relay ended", "err", err)
	}
	return n
}
