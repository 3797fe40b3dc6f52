package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/mcubridge/gatewayd/gwd"
	"github.com/op/go-logging"
)

func main() {
	configPath := flag.String("config", "/etc/gatewayd.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		logging.MustGetLogger("gwd").Fatal("loading config:", err)
	}
	if err := cfg.Validate(); err != nil {
		logging.MustGetLogger("gwd").Fatal("invalid config:", err)
	}

	log := bridge.SetupLogging("gwd", bridge.DebugLevel(cfg.DebugLogging))

	daemon, err := gwd.NewDaemon(cfg, log)
	if err != nil {
		log.Fatal("constructing daemon:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-stop
		log.Notice("stopping with signal", sig)
		cancel()
	}()

	if err := daemon.Run(ctx); err != nil {
		log.Error("daemon exited with error:", err)
		os.Exit(1)
	}
	os.Exit(0)
}
