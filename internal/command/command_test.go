package command

import (
	"testing"

	"blinkdb/internal/engine"
	"blinkdb/internal/resp"
	"blinkdb/internal/store"
)

// mapEngine is a plain map standing in for the storage engine.
type mapEngine map[string]string

func (m mapEngine) Set(key, value string) { m[key] = value }

func (m mapEngine) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapEngine) Del(key string) bool {
	_, ok := m[key]
	delete(m, key)
	return ok
}

// nopStore is an empty store.Store that accepts and discards snapshots.
type nopStore struct{}

func (nopStore) ForEach(func(store.Record) error) error { return nil }
func (nopStore) Find(string) (string, bool, error) { return "", false, nil }
func (nopStore) WriteSnapshot([]store.Record) error { return nil }
func (nopStore) Close() error { return nil }

func TestDispatch(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"set", []string{"SET", "k", "v"}, "+OK\r\n"},
		{"set lowercase", []string{"set", "k", "v"}, "+OK\r\n"},
		{"get", []string{"GET", "seeded"}, "$5\r\nvalue\r\n"},
		{"get mixed case", []string{"gEt", "seeded"}, "$5\r\nvalue\r\n"},
		{"get missing", []string{"GET", "nope"}, "$-1\r\n"},
		{"get empty value", []string{"GET", "empty"}, "$0\r\n\r\n"},
		{"del missing", []string{"DEL", "nope"}, ":0\r\n"},
		{"config", []string{"CONFIG", "GET", "save"}, "*0\r\n"},
		{"config bare", []string{"config"}, "*0\r\n"},
		{"unknown", []string{"PING"}, "-ERR Unknown command\r\n"},
		{"set too few", []string{"SET", "k"}, "-ERR Unknown command\r\n"},
		{"set too many", []string{"SET", "k", "v", "EX", "10"}, "-ERR Unknown command\r\n"},
		{"get too many", []string{"GET", "a", "b"}, "-ERR Unknown command\r\n"},
		{"del bare", []string{"DEL"}, "-ERR Unknown command\r\n"},
		{"empty", nil, "-ERR Invalid Command\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(mapEngine{"seeded": "value", "empty": ""})
			if got := d.Dispatch(tt.args); string(got) != tt.want {
				t.Fatalf("Dispatch(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestHandleInvalidBytes(t *testing.T) {
	d := New(mapEngine{})
	for _, in := range []string{"GET a\r\n", "*2\r\n$3\r\nGET\r\n$3\r\nfoo", "*2\r\n$3\r\nGET\r\n"} {
		if got := d.Handle([]byte(in)); string(got) != "-ERR Invalid Command\r\n" {
			t.Errorf("Handle(%q) = %q", in, got)
		}
	}
	// A well-formed request with a missing argument is an arity failure.
	if got := d.Handle([]byte("*1\r\n$3\r\nGET\r\n")); string(got) != "-ERR Unknown command\r\n" {
		t.Errorf("GET without key = %q", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	e, err := engine.Open(nopStore{}, engine.Options{Capacity: 16})
	if err != nil {
		t.Fatal(err)
	}
	d := New(e)

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"SET", "a", "1"}, "+OK\r\n"},
		{[]string{"GET", "a"}, "$1\r\n1\r\n"},
		{[]string{"DEL", "a"}, ":1\r\n"},
		{[]string{"GET", "a"}, "$-1\r\n"},
		{[]string{"DEL", "a"}, ":0\r\n"},
	}
	for i, s := range steps {
		got := d.Handle(resp.EncodeCommand(s.args...))
		if string(got) != s.want {
			t.Fatalf("step %d %q = %q, want %q", i, s.args, got, s.want)
		}
	}
}

func TestSetValueWithSpaces(t *testing.T) {
	m := mapEngine{}
	d := New(m)
	d.Handle(resp.EncodeCommand("SET", "foo", "bar baz"))
	if m["foo"] != "bar baz" {
		t.Fatalf("stored %q, want %q", m["foo"], "bar baz")
	}
}

func BenchmarkHandleGet(b *testing.B) {
	d := New(mapEngine{"foo": "bar"})
	req := resp.EncodeCommand("GET", "foo")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.Handle(req)
	}
}
