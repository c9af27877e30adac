package config_test

import (
	"errors"
	"testing"

	"github.com/jvdg/netsed-go/internal/config"
)

func TestParseArgsTooFew(t *testing.T) {
	_, err := config.ParseArgs([]string{"tcp", "8080", "0", "0"})
	if err == nil {
		t.Fatal("expected error for missing rule")
	}
	var argsErr *config.ArgsError
	if !errors.As(err, &argsErr) {
		t.Fatalf("expected *config.ArgsError, got %T", err)
	}
}

func TestParseArgsBadProto(t *testing.T) {
	_, err := config.ParseArgs([]string{"icmp", "8080", "0", "0", "s/a/b"})
	if err == nil {
		t.Fatal("expected error for bad protocol")
	}
}

func TestParseArgsProtoCaseInsensitive(t *testing.T) {
	cfg, err := config.ParseArgs([]string{"TCP", "8080", "0", "0", "s/a/b"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !cfg.TCP {
		t.Error("expected TCP proto to be recognized case-insensitively")
	}
}

func TestParseArgsUDP(t *testing.T) {
	cfg, err := config.ParseArgs([]string{"udp", "53", "0", "0", "s/a/b"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.TCP {
		t.Error("expected udp proto")
	}
}

func TestParseArgsBadPort(t *testing.T) {
	for _, port := range []string{"0", "notanumber", "70000"} {
		if _, err := config.ParseArgs([]string{"tcp", port, "0", "0", "s/a/b"}); err == nil {
			t.Errorf("port %q: expected error", port)
		}
	}
}

func TestParseArgsPropagatesRuleError(t *testing.T) {
	_, err := config.ParseArgs([]string{"tcp", "8080", "0", "0", "not-a-rule"})
	if err == nil {
		t.Fatal("expected error from malformed rule")
	}
}

func TestParseArgsTransparent(t *testing.T) {
	cfg, err := config.ParseArgs([]string{"tcp", "8080", "0", "0", "s/a/b"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.RemoteHost != "0" || cfg.RemotePort != "0" {
		t.Errorf("expected transparent sentinels preserved, got host=%q port=%q", cfg.RemoteHost, cfg.RemotePort)
	}
}

func TestParseArgsFixedTarget(t *testing.T) {
	cfg, err := config.ParseArgs([]string{"tcp", "8080", "10.0.0.1", "9000", "s/a/b", "s/c/d/3"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.RemoteHost != "10.0.0.1" || cfg.RemotePort != "9000" {
		t.Errorf("got host=%q port=%q", cfg.RemoteHost, cfg.RemotePort)
	}
	if len(cfg.Rules.Rules) != 2 {
		t.Errorf("expected 2 rules, got %d", len(cfg.Rules.Rules))
	}
}

func TestArgsErrorImplementsError(t *testing.T) {
	var err error = &config.ArgsError{Reason: "boom"}
	if err.Error() != "boom" {
		t.Errorf("got %q, want %q", err.Error(), "boom")
	}
}
