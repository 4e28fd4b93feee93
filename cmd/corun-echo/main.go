// Command corun-echo is a TCP echo server whose connections are
// handled by corun tasks written in sequential style.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/webriots/corun/internal/config"
)

func main() {
	var (
		path    = flag.String("config", "", "path to a TOML configuration file")
		listen  = flag.String("listen", "", "listen address, overriding the configuration")
		workers = flag.Int("workers", -1, "worker count, overriding the configuration (0 = one per CPU)")
		verbose = flag.Bool("v", false, "log every connection")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			log.Error("loading configuration", "error", err)
			os.Exit(2)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *workers >= 0 {
		cfg.Workers.Count = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Error("listening", "error", err)
		os.Exit(1)
	}
	log.Info("listening", "addr", ln.Addr().String())

	if err := newServer(cfg, log).serve(ctx, ln); err != nil {
		log.Error("serving", "error", err)
		os.Exit(1)
	}
}
