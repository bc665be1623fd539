// Relay — rendezvous server for peertalk endpoints.
//
// Keeps the registry of signed-in peers and forwards signaling messages and
// hang-ups between them. It never looks inside the messages.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/peertalk/internal/config"
	"github.com/1ureka/peertalk/internal/relay"
	"github.com/1ureka/peertalk/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.ParseRelay(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if err := util.SetLevel(cfg.LogLevel); err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	pterm.Info.Printfln("Peertalk relay — v%s", version)

	util.StartStatsReporter(ctx, time.Minute)

	if err := relay.NewServer().ListenAndServe(ctx, cfg.Listen); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("relay stopped")
}
