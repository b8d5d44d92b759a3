// Package client is a minimal blocking RESP client, one request in flight
// at a time.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"blinkdb/internal/resp"
)

const DefaultTimeout = 5 * time.Second

type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to a server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), timeout: DefaultTimeout}, nil
}

// Do sends one command and waits for its reply. Error replies from the
// server are returned as a Reply of KindError, not as a Go error.
func (c *Client) Do(args ...string) (resp.Reply, error) {
	if len(args) == 0 {
		return resp.Reply{}, errors.New("client: empty command")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return resp.Reply{}, err
	}
	if _, err := c.conn.Write(resp.EncodeCommand(args...)); err != nil {
		return resp.Reply{}, fmt.Errorf("sending %s: %w", args[0], err)
	}
	reply, err := resp.ReadReply(c.r)
	if err != nil {
		return resp.Reply{}, fmt.Errorf("reading reply: %w", err)
	}
	return reply, nil
}

// Set, Get and Del wrap Do for the three data commands.
func (c *Client) Set(key, value string) error {
	r, err := c.Do("SET", key, value)
	if err != nil {
		return err
	}
	if r.Kind != resp.KindSimple {
		return fmt.Errorf("SET: unexpected reply %s", r)
	}
	return nil
}

func (c *Client) Get(key string) (string, bool, error) {
	r, err := c.Do("GET", key)
	if err != nil {
		return "", false, err
	}
	switch r.Kind {
	case resp.KindBulk:
		return r.Str, true, nil
	case resp.KindNull:
		return "", false, nil
	}
	return "", false, fmt.Errorf("GET: unexpected reply %s", r)
}

func (c *Client) Del(key string) (bool, error) {
	r, err := c.Do("DEL", key)
	if err != nil {
		return false, err
	}
	if r.Kind != resp.KindInteger {
		return false, fmt.Errorf("DEL: unexpected reply %s", r)
	}
	return r.Int == 1, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
