// Package app contains the top-level orchestration for the endpoint.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/peertalk/internal/config"
	"github.com/1ureka/peertalk/internal/relay"
	"github.com/1ureka/peertalk/internal/session"
	"github.com/1ureka/peertalk/internal/transport"
	"github.com/1ureka/peertalk/internal/util"
)

var _ session.Relay = (*relay.Client)(nil)
var _ relay.Observer = (*session.Conductor)(nil)

// Run wires the endpoint together and blocks until ctx is cancelled:
//  1. Build the engine factory and the relay client
//  2. Create the session, its loop and the conductor facade
//  3. Start the console presenter and the stats reporter
//  4. Sign in to the relay
//  5. Drive the session loop until shutdown, then hang up and sign out
func Run(ctx context.Context, cfg config.Config, interactive bool) error {
	// ── 1. Engine factory & relay client ───────────────────────────────
	factory, err := transport.NewFactory()
	if err != nil {
		return fmt.Errorf("failed to set up the negotiation engine: %w", err)
	}
	client := relay.NewClient(nil)

	// ── 2. Session ─────────────────────────────────────────────────────
	console := newConsole(cfg.Peer, interactive)
	loop := session.NewLoop()
	sess := session.New(loop, client, factory, console, session.Options{
		ICEServers: cfg.ICEServers,
		Name:       cfg.Name,
		SendMedia:  cfg.SendMedia,
	})
	conductor := session.NewConductor(loop, sess)
	client.SetObserver(conductor)

	// ── 3. Presenter & stats ───────────────────────────────────────────
	go console.run(ctx, conductor)
	if cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, time.Duration(cfg.StatsInterval)*time.Second)
	}

	// ── 4. Sign in ─────────────────────────────────────────────────────
	util.LogInfo("signing in to %s:%d as %s", cfg.Server, cfg.Port, cfg.Name)
	conductor.StartLogin(ctx, cfg.Server, cfg.Port)

	// ── 5. Block until shutdown ────────────────────────────────────────
	conductor.Run(ctx)
	return nil
}
