package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/wheelhouse-gg/wheelhouse/cmd/wheelhouse/shared"
	"github.com/wheelhouse-gg/wheelhouse/internal/config"
	"github.com/wheelhouse-gg/wheelhouse/internal/hub"
	"github.com/wheelhouse-gg/wheelhouse/internal/ledger"
	"github.com/wheelhouse-gg/wheelhouse/internal/round"
	"github.com/wheelhouse-gg/wheelhouse/internal/server"
	"github.com/wheelhouse-gg/wheelhouse/internal/store"
)

// ServerCmd runs the round engine with its HTTP/WebSocket front.
type ServerCmd struct {
	Config      string `kong:"default='wheelhouse.hcl',help='Path to HCL config file'"`
	Addr        string `kong:"help='Listen address, overrides the config file'"`
	DatabaseURL string `kong:"env='DATABASE_URL',help='Postgres URL for the round archive, overrides the config file'"`
	Debug       bool   `kong:"help='Enable debug logging'"`
	LogJSON     bool   `kong:"help='Emit structured JSON logs instead of console output'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if c.DatabaseURL != "" {
		cfg.Server.DatabaseURL = c.DatabaseURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel)
	if c.LogJSON {
		logger = shared.SetupStructuredLogger(cfg.Server.LogLevel)
	}
	ctx := shared.SetupSignalHandler(logger)
	clock := quartz.NewReal()

	// Archive: Postgres when configured, in-memory otherwise. The retry
	// writer sits in front of either so a slow archive never touches the
	// round loop.
	var archive round.Archiver
	var pg *store.Postgres
	if cfg.Server.DatabaseURL != "" {
		pg, err = store.Connect(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		archive = pg
		logger.Info().Msg("Using Postgres round archive")
	} else {
		archive = store.NewMemory()
		logger.Warn().Msg("No database configured, rounds archived in memory only")
	}
	writer := store.NewRetryWriter(archive, clock, logger)

	settler := ledger.NewMemory(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writer.Run(gctx) })

	games := make([]*server.Game, 0, len(cfg.Games))
	for _, gc := range cfg.Games {
		rcfg := gc.RoundConfig()

		// The hub needs the scheduler's snapshot and the scheduler needs the
		// hub as its broadcaster, so the hub closes over a pointer filled in
		// just below. Nothing subscribes before Run starts the round loop.
		var sched *round.Scheduler
		opts := []hub.Option{
			hub.WithSnapshot(func() round.Event { return sched.SnapshotEvent() }),
			hub.WithCountFunc(func(n int) {
				if gate := sched.Gate(); gate != nil {
					gate.SetSubscriberCount(n)
				}
			}),
		}
		if gc.ChannelCapacity > 0 {
			opts = append(opts, hub.WithCapacity(gc.ChannelCapacity))
		}
		h := hub.New(logger.With().Str("game", gc.Name).Logger(), clock, opts...)

		sched = round.NewScheduler(logger, clock, rcfg, h,
			round.WithArchiver(writer),
			round.WithLedger(settler),
		)

		games = append(games, &server.Game{Name: gc.Name, Scheduler: sched, Hub: h})

		s := sched
		g.Go(func() error { return s.Run(gctx) })

		logger.Info().
			Str("game", gc.Name).
			Str("kind", gc.Kind).
			Dur("tick", sched.Config().TickInterval).
			Dur("betting_window", sched.Config().BettingWindow).
			Msg("Scheduler started")
	}

	srv := server.NewServer(logger, games...)

	addr := cfg.Addr()
	if c.Addr != "" {
		addr = c.Addr
	}

	logger.Info().
		Str("address", addr).
		Int("games", len(games)).
		Msg("Starting wheelhouse server")

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return g.Wait()
	case err := <-serverErr:
		return err
	}
}
