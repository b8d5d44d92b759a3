// Command blinkctl is an interactive console for a blinkdb server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"blinkdb/internal/client"
)

const prompt = "blinkdb> "

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "server address")
	flag.Parse()

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blinkctl: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	reg := newRegistry()
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		err = runTerminal(fd, reg, c)
	} else {
		err = runLines(os.Stdin, os.Stdout, reg, c)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "blinkctl: %v\n", err)
		os.Exit(1)
	}
}

// runTerminal drives the console with line editing and history on a raw
// mode terminal.
func runTerminal(fd int, reg *registry, c doer) error {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, prompt)
	_, _ = fmt.Fprint(t, "Connected. Type HELP for commands.\n")
	for {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if reg.dispatch(line, t, c) {
			return nil
		}
	}
}

// runLines reads commands from a pipe or file, one per line.
func runLines(in io.Reader, out io.Writer, reg *registry, c doer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if reg.dispatch(sc.Text(), out, c) {
			return nil
		}
	}
	return sc.Err()
}
