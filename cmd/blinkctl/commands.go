package main

import (
	"fmt"
	"io"
	"strings"

	"blinkdb/internal/resp"
)

// doer sends one command to the server.
type doer interface {
	Do(args ...string) (resp.Reply, error)
}

type commandContext struct {
	Out    io.Writer
	Client doer
	Args   []string
}

// commandHandler runs one console command. It returns true when the
// console should exit.
type commandHandler func(ctx commandContext) bool

type consoleCommand struct {
	Usage   string
	Help    string
	Handler commandHandler
}

// registry maps upper-cased command names to handlers and keeps
// registration order for help output.
type registry struct {
	commands map[string]consoleCommand
	order    []string
}

func newRegistry() *registry {
	r := &registry{commands: make(map[string]consoleCommand)}
	r.registerBuiltins()
	return r
}

func (r *registry) register(name string, cmd consoleCommand) {
	if cmd.Handler == nil {
		panic("blinkctl: register called with nil handler for " + name)
	}
	name = strings.ToUpper(name)
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// dispatch parses a console line and runs the matching command.
func (r *registry) dispatch(line string, out io.Writer, c doer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, ok := r.commands[strings.ToUpper(parts[0])]
	if !ok {
		_, _ = fmt.Fprintf(out, "Unknown command: %s (try HELP)\n", parts[0])
		return false
	}
	return cmd.Handler(commandContext{Out: out, Client: c, Args: parts[1:]})
}

func (r *registry) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		display := name
		if cmd.Usage != "" {
			display = cmd.Usage
		}
		_, _ = fmt.Fprintf(&b, "  %-20s %s\n", display, cmd.Help)
	}
	return b.String()
}

func (r *registry) registerBuiltins() {
	r.register("SET", consoleCommand{
		Usage:   "SET <key> <value...>",
		Help:    "store a value; the rest of the line is the value",
		Handler: handleSet,
	})
	r.register("GET", consoleCommand{
		Usage:   "GET <key>",
		Help:    "fetch a value",
		Handler: handleKey("GET"),
	})
	r.register("DEL", consoleCommand{
		Usage:   "DEL <key>",
		Help:    "delete a key",
		Handler: handleKey("DEL"),
	})
	r.register("HELP", consoleCommand{
		Help: "show this help",
		Handler: func(ctx commandContext) bool {
			_, _ = fmt.Fprint(ctx.Out, r.helpText())
			return false
		},
	})
	quit := consoleCommand{
		Help: "leave the console",
		Handler: func(ctx commandContext) bool {
			_, _ = fmt.Fprintln(ctx.Out, "Goodbye.")
			return true
		},
	}
	r.register("EXIT", quit)
	r.register("QUIT", quit)
}

func handleSet(ctx commandContext) bool {
	if len(ctx.Args) < 2 {
		_, _ = fmt.Fprintln(ctx.Out, "Usage: SET <key> <value...>")
		return false
	}
	// The rest of the line is the value, spaces included.
	return forward(ctx, "SET", ctx.Args[0], strings.Join(ctx.Args[1:], " "))
}

// handleKey builds the handler for a command taking exactly one key.
func handleKey(name string) commandHandler {
	return func(ctx commandContext) bool {
		if len(ctx.Args) != 1 {
			_, _ = fmt.Fprintf(ctx.Out, "Usage: %s <key>\n", name)
			return false
		}
		return forward(ctx, name, ctx.Args[0])
	}
}

func forward(ctx commandContext, args ...string) bool {
	reply, err := ctx.Client.Do(args...)
	if err != nil {
		_, _ = fmt.Fprintf(ctx.Out, "Error: %v\n", err)
		return false
	}
	_, _ = fmt.Fprintln(ctx.Out, reply.String())
	return false
}
