// Package server is the connection manager: it accepts TCP clients and
// feeds their requests through a single event loop goroutine, so command
// processing is serialized no matter how many clients are connected.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"blinkdb/internal/logging"
	"blinkdb/internal/netutil"
	"blinkdb/internal/resp"
)

var srvlog = logging.For("server")

const (
	DefaultMaxClients   = 1500
	DefaultReadBuffer   = 1024
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrNotListening = errors.New("server: not listening")
	ErrStopped      = errors.New("server: stopped")
)

var replyTooMany = resp.Error("max number of clients reached")

// Handler turns the bytes of one read into the bytes of one reply.
type Handler interface {
	Handle(buf []byte) []byte
}

type Options struct {
	Addr         string
	MaxClients   int
	ReadBuffer   int
	WriteTimeout time.Duration
	// ReusePort lets other processes bind Addr too. Two servers sharing a
	// port also share whichever snapshot file they were configured with.
	ReusePort bool
}

// Server owns the listener and every client connection.
type Server struct {
	opts    Options
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*conn

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	readers   sync.WaitGroup
}

// conn is one client. Its reader goroutine owns buf until it has handed
// an event to the loop, and waits on ready before reading again.
type conn struct {
	id     string
	nc     net.Conn
	buf    []byte
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

// event is the result of one read: n bytes in c.buf, or err.
type event struct {
	c   *conn
	n   int
	err error
}

func New(opts Options, h Handler) *Server {
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = DefaultReadBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		opts:    opts,
		handler: h,
		conns:   make(map[string]*conn),
		events:  make(chan event, 64),
		done:    make(chan struct{}),
	}
}

// Listen binds the listener. Errors here are fatal for the process.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := netutil.Listen(ctx, s.opts.Addr, s.opts.ReusePort)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	srvlog.Info("listening", "addr", ln.Addr().String(), "max_clients", s.opts.MaxClients)
	return nil
}

// Serve runs the accept goroutine and the event loop until ctx is
// cancelled or Stop is called. It returns after every connection has been
// closed and its reader has exited.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	go s.acceptLoop(ln)
	s.loop(ctx)
	s.Stop()
	s.readers.Wait()
	return nil
}

// Stop closes the listener and every connection. Safe to call more than
// once and from any goroutine.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		conns := make([]*conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			s.closeConn(c, "shutdown")
		}
	})
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			srvlog.Warn("accept error", "err", err)
			continue
		}
		s.register(nc)
	}
}

func (s *Server) register(nc net.Conn) {
	c := &conn{
		id:     uuid.NewString(),
		nc:     nc,
		buf:    make([]byte, s.opts.ReadBuffer),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		nc.Close()
		return
	default:
	}
	if len(s.conns) >= s.opts.MaxClients {
		s.mu.Unlock()
		srvlog.Warn("rejecting client: at capacity", "remote", nc.RemoteAddr(), "max_clients", s.opts.MaxClients)
		nc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		nc.Write(replyTooMany)
		nc.Close()
		return
	}
	s.conns[c.id] = c
	s.readers.Add(1)
	s.mu.Unlock()

	srvlog.Debug("client connected", "conn", c.id, "remote", nc.RemoteAddr())
	go s.readLoop(c)
}

// readLoop performs one bounded read at a time and hands the result to
// the event loop. It exits after reporting EOF or an error, or when the
// connection or the server is closed.
func (s *Server) readLoop(c *conn) {
	defer s.readers.Done()
	for {
		n, err := c.nc.Read(c.buf)
		select {
		case s.events <- event{c: c, n: n, err: err}:
		case <-c.closed:
			return
		case <-s.done:
			return
		}
		if n == 0 || err != nil {
			return
		}
		select {
		case <-c.ready:
		case <-c.closed:
			return
		case <-s.done:
			return
		}
	}
}

// loop is the only goroutine that runs the handler.
func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			s.process(ev)
		}
	}
}

func (s *Server) process(ev event) {
	c := ev.c
	select {
	case <-c.closed:
		return
	default:
	}

	if ev.n > 0 {
		reply := s.handler.Handle(c.buf[:ev.n])
		if err := s.write(c, reply); err != nil {
			s.closeConn(c, fmt.Sprintf("write: %v", err))
			return
		}
	}
	if ev.n == 0 || ev.err != nil {
		reason := "eof"
		if ev.err != nil && !isEOF(ev.err) {
			reason = ev.err.Error()
		}
		s.closeConn(c, reason)
		return
	}
	c.ready <- struct{}{}
}

// write sends the whole reply once. A failed or short write is not retried.
func (s *Server) write(c *conn, reply []byte) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	_, err := c.nc.Write(reply)
	return err
}

func (s *Server) closeConn(c *conn, reason string) {
	c.once.Do(func() {
		close(c.closed)
		c.nc.Close()
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		srvlog.Debug("client disconnected", "conn", c.id, "reason", reason)
	})
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
