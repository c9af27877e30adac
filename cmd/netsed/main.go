package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/jvdg/netsed-go/internal/config"
	"github.com/jvdg/netsed-go/internal/dispatcher"
	"github.com/jvdg/netsed-go/internal/logger"
)

const version = "1.2-go"

const usage = `netsed <tcp|udp> <lport> <rhost> <rport> <rule> [rule...]

  proto      "tcp" or "udp", case-insensitive
  lport      local port to listen on
  rhost      remote host to forward to, or "0" for the connection's original destination
  rport      remote port to forward to, or "0" for the connection's original destination
  rule       s/from/to[/count], "%%XX" hex-escapes and "%%%%" allowed in from/to

netsed %s
`

func main() {
	os.Exit(run())
}

func run() int {
	verbose := flag.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flag.BoolP("version", "V", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("netsed " + version)
		return 0
	}
	if *verbose {
		logger.SetLevel(slog.LevelDebug)
	}

	cfg, err := config.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, usage, version)
		return 1
	}

	logger.Info("loaded rules", "count", len(cfg.Rules.Rules))
	for _, r := range cfg.Rules.Rules {
		logger.Debug("parsed rule", "from", r.FromOrig, "to", r.ToOrig, "count", r.InitialCount)
	}

	// A signal write returning EPIPE is already how Go reports a broken
	// pipe; ignoring SIGPIPE documents the same intent as the original's
	// signal(SIGPIPE, SIG_IGN) even though Go never raises it.
	signal.Ignore(syscall.SIGPIPE)

	d, err := dispatcher.New(*cfg, cfg.Rules, logger.Default())
	if err != nil {
		logger.Error("failed to start", "err", err)
		return 2
	}

	proto := "udp"
	if cfg.TCP {
		proto = "tcp"
	}
	logger.Info("netsed listening", "version", version, "proto", proto, "addr", d.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logger.Error("dispatcher exited with error", "err", err)
		return 2
	}

	logger.Info("shut down cleanly")
	return 0
}
