package main

import (
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		listen   string
		backends []string
	}{
		{
			name:     "ip port pairs",
			args:     []string{"9000", "10.0.0.1", "9001", "10.0.0.2", "9002"},
			listen:   "0.0.0.0:9000",
			backends: []string{"10.0.0.1:9001", "10.0.0.2:9002"},
		},
		{
			name:     "host port strings",
			args:     []string{"9000", "db1:9001", "db2:9001", "db3:9001"},
			listen:   "0.0.0.0:9000",
			backends: []string{"db1:9001", "db2:9001", "db3:9001"},
		},
		{
			name:     "ipv6 pair",
			args:     []string{"9000", "::1", "9001"},
			listen:   "0.0.0.0:9000",
			backends: []string{"[::1]:9001"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listen, backends, err := parseArgs(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if listen != tt.listen {
				t.Errorf("listen = %q, want %q", listen, tt.listen)
			}
			if strings.Join(backends, ",") != strings.Join(tt.backends, ",") {
				t.Errorf("backends = %v, want %v", backends, tt.backends)
			}
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"9000"}, "at least one backend"},
		{[]string{"abc", "10.0.0.1", "9001"}, "listen port"},
		{[]string{"70000", "10.0.0.1", "9001"}, "listen port"},
		{[]string{"9000", "10.0.0.1"}, "pairs"},
		{[]string{"9000", "10.0.0.1", "port"}, "backend 1 port"},
	}
	for _, tt := range tests {
		_, _, err := parseArgs(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("parseArgs(%q) = %v, want error containing %q", tt.args, err, tt.want)
		}
	}
}
