//go:build linux
// +build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/godzie44/go-echo/server"
	"github.com/godzie44/go-echo/sock"
	"go.uber.org/zap"
)

var (
	transport = flag.String("transport", "tcp", "use TCP/UDP protocol")
	epollMode = flag.Bool("epoll", false, "enable epoll to run TCP server")
	debug     = flag.Bool("debug", false, "log every received message")
	port      int
)

func init() {
	flag.IntVar(&port, "port", server.DefaultPort, "port number")
	flag.IntVar(&port, "p", server.DefaultPort, "port number (shorthand)")
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [--transport tcp|udp] [--epoll] [--port port]\noptions:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg := server.DefaultConfig()
	cfg.Port = port
	cfg.Multiplexed = *epollMode

	tr, err := sock.ParseTransport(*transport)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid transport protocol. Use 'tcp' or 'udp'")
		usage()
		os.Exit(1)
	}
	cfg.Transport = tr

	if err = cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(1)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, server.NewZapLogger(logger))
	if err != nil {
		logger.Fatal("error starting echo server", zap.Error(err))
	}

	if err = srv.Run(ctx); err != nil {
		logger.Fatal("echo server failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
