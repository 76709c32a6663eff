package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"casbot/internal/bot"
	callbackhandler "casbot/internal/callback/handler"
	callbackmetrics "casbot/internal/callback/metrics"
	"casbot/internal/discord"
	httpapi "casbot/internal/http"
	"casbot/internal/platform/config"
	"casbot/internal/platform/httpserver"
	"casbot/internal/platform/logger"
	platformmetrics "casbot/internal/platform/metrics"
	platformmongo "casbot/internal/platform/mongo"
	platformpostgres "casbot/internal/platform/postgres"
	platformredis "casbot/internal/platform/redis"
	"casbot/internal/policy"
	rosterstore "casbot/internal/roster/store"
	"casbot/internal/verification/effector"
	verificationmetrics "casbot/internal/verification/metrics"
	"casbot/internal/verification/service"
	"casbot/internal/verification/token"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve the CAS callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	policies, report, err := policy.Load(cfg.PolicyFile)
	for _, line := range report.Lines() {
		log.Info(line)
	}
	if err != nil {
		log.Error("server config rejected", "path", cfg.PolicyFile, "error", err)
		return err
	}

	m := platformmetrics.New()
	m.SetPoliciesLoaded(policies.Len())

	tokens, closeTokens, err := openTokens(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	roster := rosterstore.NewLazy()
	eff := effector.New(policies, roster, effector.WithLogger(log))
	verifier := service.New(tokens, roster, eff, cfg.Links.BaseURL(),
		service.WithLogger(log),
		service.WithMetrics(verificationmetrics.New(m.Registry)),
	)
	b, err := bot.New(verifier, roster, policies,
		bot.WithLogger(log),
		bot.WithAdmins(cfg.Admins...),
	)
	if err != nil {
		return err
	}

	adapter, err := discord.New(cfg.DiscordToken, b, log)
	if err != nil {
		return err
	}

	callback := callbackhandler.New(tokens, roster, log, callbackmetrics.New(m.Registry))
	router := httpapi.NewRouter(httpapi.Deps{
		Callback: callback,
		Gatherer: m.Registry,
		Ready:    roster.Ready,
		Logger:   log,
	})
	srv := httpserver.New(cfg.Callback.Addr(), router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return adapter.Run(ctx)
	})
	g.Go(func() error {
		return httpserver.Run(ctx, srv, log)
	})
	g.Go(func() error {
		// Commands answer "initializing" until the roster is attached.
		select {
		case <-adapter.Ready():
		case <-ctx.Done():
			return nil
		}
		closeRoster, err := connectRoster(ctx, cfg.Roster, roster, log)
		if err != nil {
			return err
		}
		m.SetRosterReady(true)
		<-ctx.Done()
		closeRoster()
		return nil
	})

	log.Info("casbot starting",
		"callback_addr", cfg.Callback.Addr(),
		"roster_backend", cfg.Roster.Backend,
		"token_backend", cfg.Tokens.Backend,
		"servers", policies.Len(),
	)
	return g.Wait()
}

func openTokens(ctx context.Context, cfg config.Config) (token.Registry, func(), error) {
	switch cfg.Tokens.Backend {
	case config.BackendRedis:
		client, err := platformredis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return token.NewRedis(client), func() { _ = client.Close() }, nil
	default:
		return token.NewInMemory(), func() {}, nil
	}
}

// connectRoster opens the configured backend, prepares its schema and
// attaches it to the lazy store.
func connectRoster(ctx context.Context, cfg config.RosterConfig, lazy *rosterstore.Lazy, log *slog.Logger) (func(), error) {
	switch cfg.Backend {
	case config.BackendMongo:
		client, db, err := platformmongo.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := rosterstore.NewMongo(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure roster indexes: %w", err)
		}
		lazy.Attach(store)
		log.Info("roster connected", "backend", cfg.Backend, "database", cfg.MongoDatabase)
		return func() { _ = client.Disconnect(context.Background()) }, nil
	case config.BackendPostgres:
		pool, err := platformpostgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		store := rosterstore.NewPostgres(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate roster: %w", err)
		}
		lazy.Attach(store)
		log.Info("roster connected", "backend", cfg.Backend)
		return pool.Close, nil
	default:
		lazy.Attach(rosterstore.NewInMemory())
		log.Warn("roster is in memory; verified members are lost on restart")
		return func() {}, nil
	}
}
