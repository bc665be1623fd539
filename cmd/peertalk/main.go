// Peertalk — endpoint CLI.
//
// Signs in to a relay, lists the other peers and negotiates one peer-to-peer
// media session with the chosen peer, or answers whoever calls first.
//
// It can be driven interactively (pick a peer from the list) or
// non-interactively via flags (--peer NAME calls that peer once it signs in).
// Ctrl+C hangs up and signs out.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/peertalk/internal/app"
	"github.com/1ureka/peertalk/internal/config"
	"github.com/1ureka/peertalk/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Parse(os.Args[1:])
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

	pterm.Info.Println(fmt.Sprintf("Peertalk — v%s", version))
	pterm.Println()

	if err := app.Run(ctx, cfg, isTerminal(os.Stdin)); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("signed out, bye")
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
