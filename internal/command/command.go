// Package command maps decoded requests onto storage engine operations and
// encodes their results.
package command

import (
	"strings"

	"blinkdb/internal/resp"
)

// Engine is the part of the storage engine the dispatcher drives.
type Engine interface {
	Set(key, value string)
	Get(key string) (string, bool)
	Del(key string) bool
}

// Replies for requests the dispatcher cannot serve.
var (
	replyUnknown = resp.Error("Unknown command")
	replyInvalid = resp.Error("Invalid Command")
	replyOK      = resp.SimpleString("OK")
)

// anyArity accepts any number of arguments.
const anyArity = -1

type handler struct {
	arity int // total token count including the command name, or anyArity
	fn    func(e Engine, args []string) []byte
}

// Dispatcher resolves the first token of a request, case-insensitively,
// against a fixed handler table. It holds no state of its own; concurrent
// use is as safe as the underlying Engine.
type Dispatcher struct {
	engine   Engine
	handlers map[string]handler
}

func New(e Engine) *Dispatcher {
	return &Dispatcher{
		engine: e,
		handlers: map[string]handler{
			"SET":    {arity: 3, fn: set},
			"GET":    {arity: 2, fn: get},
			"DEL":    {arity: 2, fn: del},
			"CONFIG": {arity: anyArity, fn: config},
		},
	}
}

// Dispatch runs one decoded request and returns the encoded reply. An
// empty request means the bytes did not decode.
func (d *Dispatcher) Dispatch(args []string) []byte {
	if len(args) == 0 {
		return replyInvalid
	}
	h, ok := d.handlers[strings.ToUpper(args[0])]
	if !ok || (h.arity != anyArity && h.arity != len(args)) {
		return replyUnknown
	}
	return h.fn(d.engine, args)
}

// Handle decodes raw request bytes and dispatches them.
func (d *Dispatcher) Handle(buf []byte) []byte {
	return d.Dispatch(resp.Decode(buf))
}

func set(e Engine, args []string) []byte {
	e.Set(args[1], args[2])
	return replyOK
}

func get(e Engine, args []string) []byte {
	v, ok := e.Get(args[1])
	if !ok {
		return resp.Null()
	}
	return resp.BulkString(v)
}

func del(e Engine, args []string) []byte {
	if e.Del(args[1]) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

// config acknowledges CONFIG requests so clients that probe the server
// configuration on connect (redis-benchmark, some drivers) proceed.
func config(Engine, []string) []byte {
	return resp.EmptyArray()
}
