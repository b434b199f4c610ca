// Command ircserv runs a single-process IRC server on the given port,
// gated by the given connection password.
//
// this is a wrapper to enable us to put the interesting stuff in a package
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/abligh/ircserv/internal/commands"
	"github.com/abligh/ircserv/internal/config"
	"github.com/abligh/ircserv/internal/reactor"
	"github.com/abligh/ircserv/internal/registry"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	logger := config.NewLogger(config.DefaultLogConfig)

	reg := registry.New()
	srv := commands.New(reg, cfg.Password, logger)
	r := reactor.New(reg, srv, logger)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	go func() {
		<-sig
		close(stop)
	}()

	if err := r.Run(cfg.Port, stop); err != nil {
		logger.Printf("[CRIT] %v", err)
		os.Exit(1)
	}
}
