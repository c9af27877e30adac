// Package config builds the process configuration from the command line.
//
// There is no config file and no environment variable: every setting comes
// from the positional argument list, matching the invocation contract.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jvdg/netsed-go/internal/ruleset"
)

// Config is the fully-parsed, immutable configuration for one run.
type Config struct {
	TCP        bool
	ListenPort uint16
	RemoteHost string // "" or "0" means transparent (use original destination address)
	RemotePort string // "" or "0" means transparent (use original destination port)
	Rules      *ruleset.RuleSet
}

// ArgsError is returned for a malformed invocation; the caller is expected
// to print usage text and exit with status 1.
type ArgsError struct {
	Reason string
}

func (e *ArgsError) Error() string { return e.Reason }

// ParseArgs builds a Config from the positional arguments that follow the
// program name, i.e. os.Args[1:]. It mirrors the original tool's
// "proto lport rhost rport rule..." contract.
func ParseArgs(args []string) (*Config, error) {
	if len(args) < 5 {
		return nil, &ArgsError{Reason: "not enough parameters"}
	}

	proto := strings.ToLower(args[0])
	var tcp bool
	switch proto {
	case "tcp":
		tcp = true
	case "udp":
		tcp = false
	default:
		return nil, &ArgsError{Reason: fmt.Sprintf("incorrect protocol %q, want tcp or udp", args[0])}
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil || port == 0 {
		return nil, &ArgsError{Reason: fmt.Sprintf("invalid local port %q", args[1])}
	}

	rules, err := ruleset.ParseRules(args[4:])
	if err != nil {
		return nil, &ArgsError{Reason: err.Error()}
	}

	return &Config{
		TCP:        tcp,
		ListenPort: uint16(port),
		RemoteHost: args[2],
		RemotePort: args[3],
		Rules:      rules,
	}, nil
}
