// Package main runs the copy-trading engine: shred-stream ingestion,
// swap detection for watched wallets, and optional copy execution with
// risk gates and automated exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shredcopy/internal/config"
	"shredcopy/internal/detect"
	"shredcopy/internal/domain"
	"shredcopy/internal/events"
	"shredcopy/internal/exit"
	"shredcopy/internal/filter"
	"shredcopy/internal/jito"
	"shredcopy/internal/jupiter"
	"shredcopy/internal/ledger"
	"shredcopy/internal/logging"
	"shredcopy/internal/lookup"
	"shredcopy/internal/metadata"
	"shredcopy/internal/observability"
	"shredcopy/internal/orchestrator"
	"shredcopy/internal/pricing"
	"shredcopy/internal/quote"
	"shredcopy/internal/solana"
	"shredcopy/internal/storage"
	chstore "shredcopy/internal/storage/clickhouse"
	"shredcopy/internal/storage/memory"
	pgstore "shredcopy/internal/storage/postgres"
	"shredcopy/internal/stream"
	"shredcopy/internal/submit"
	"shredcopy/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	if err := run(cfg, log); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("engine stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("shredcopy")
	bus := events.NewBus(log)
	defer bus.Close()

	// Stores.
	var archive storage.TradeArchive = memory.NewTradeArchive()
	if dsn := cfg.Archive.ClickHouseDSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		if err := chstore.EnsureSchema(ctx, conn); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		archive = chstore.NewTradeArchive(conn, log)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.Close(closeCtx); err != nil {
			log.WithError(err).Warn("archive close failed")
		}
	}()

	watchlist := watch.NewList(cfg.WatchedWallets...)
	allowedTokens := toSet(cfg.Trade.AllowedTokens)
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		store := pgstore.NewWatchlistStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		wallets, err := store.LoadWallets(ctx)
		if err != nil {
			return fmt.Errorf("load watchlist: %w", err)
		}
		for _, w := range wallets {
			watchlist.Add(w)
		}
		tokens, err := store.LoadTokenWhitelist(ctx)
		if err != nil {
			return fmt.Errorf("load token whitelist: %w", err)
		}
		for _, t := range tokens {
			allowedTokens[t] = struct{}{}
		}
	}
	if watchlist.Len() == 0 {
		log.Warn("watchlist is empty, nothing will be detected")
	}

	// Chain and API clients.
	rpc := solana.NewHTTPClient(cfg.RPC.Endpoint)
	resolver := lookup.NewResolver(rpc, log)
	recon := detect.NewReconstructor(rpc)
	jup := jupiter.NewClient(cfg.APIs.QuoteBaseURL, cfg.APIs.QuoteAPIKey, log)
	prices := pricing.NewClient(cfg.APIs.PriceBaseURL)
	meta := metadata.NewClient(cfg.APIs.MetadataBaseURL)

	// Detection pipeline.
	pipeline := detect.NewPipeline(detect.PipelineOptions{
		Watchlist: watchlist,
		Resolver:  resolver,
		Recon:     recon,
		Bus:       bus,
		Archive:   archive,
		Metrics:   metrics,
		Logger:    log,
	})

	streamClient := stream.NewClient(stream.Options{
		Endpoint:       cfg.Stream.Endpoint,
		ReconnectDelay: time.Duration(cfg.Stream.ReconnectMs) * time.Millisecond,
		MaxAttempts:    cfg.Stream.MaxAttempts,
		Logger:         log,
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return streamClient.Run(gctx) })
	g.Go(func() error { return pipeline.Run(gctx, streamClient.Frames()) })

	// Notification fan-out.
	wsPub := events.NewWSPublisher(log)
	g.Go(func() error {
		wsPub.Run(gctx, bus.Subscribe())
		return nil
	})

	// Copy execution.
	trades := pipeline.Trades()
	if cfg.Trade.Enabled {
		wallet, err := solana.NewWalletFromBase58(cfg.WalletSecretKey)
		if err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		log.WithField("wallet", wallet.Pubkey()).Info("copy wallet loaded")

		jup.Warmup(ctx)

		var relay *jito.Client
		if cfg.Trade.UseBundleRelay {
			relay = jito.NewClient(cfg.Trade.BundleRelayEndpoint, wallet, cfg.Trade.BundleTipLamports, log)
			if err := relay.Init(ctx); err != nil {
				// Non-fatal: the submitter degrades to RPC-only.
				log.WithError(err).Warn("continuing without bundle relay")
			}
			defer relay.Close()
		}

		sender := submit.NewSubmitter(rpc, relay, metrics, log)
		quotes := quote.NewCache(jup, cfg.Trade.SlippageBps, log)
		prebuilt := quote.NewPreBuiltCache(quote.PreBuiltOptions{
			Fetcher:     jup,
			Builder:     jup,
			Wallet:      wallet,
			Logger:      log,
			SlippageBps: cfg.Trade.SlippageBps,
			CUPriceML:   cfg.Trade.PriorityFeeMicroLamports,
		})

		book := ledger.New(domain.RiskLimits{
			MaxPositionUSDC:      decimal.NewFromFloat(cfg.Risk.MaxPositionUSDC),
			MaxTotalExposureUSDC: decimal.NewFromFloat(cfg.Risk.MaxTotalExposureUSDC),
			MaxOpenPositions:     cfg.Risk.MaxOpenPositions,
			MinUSDCReserve:       decimal.NewFromFloat(cfg.Risk.MinUSDCReserve),
		}, bus, metrics, log)

		quality := filter.NewQuality(meta, domain.QualityLimits{
			MinLiquidityUSDC:  decimal.NewFromFloat(cfg.Filter.MinLiquidityUSDC),
			MaxPriceImpactPct: decimal.NewFromFloat(cfg.Filter.MaxPriceImpactPct),
			MinTokenAgeSec:    cfg.Filter.MinTokenAgeSec,
			Min24hVolumeUSDC:  decimal.NewFromFloat(cfg.Filter.Min24hVolumeUSDC),
			MaxRecentPumpPct:  decimal.NewFromFloat(cfg.Filter.MaxRecentPumpPct),
			Whitelist:         allowedTokens,
		}, log)

		tracker := orchestrator.NewBalanceTracker(decimal.NewFromFloat(cfg.WalletUSDCBalance))
		orch := orchestrator.New(orchestrator.Options{
			Config: orchestrator.Config{
				AmountUSDC:    cfg.AmountUSDCDecimal(),
				AllowedTokens: allowedTokens,
				MinTradeUSDC:  decimal.NewFromFloat(cfg.Trade.MinTradeUSDC),
				SlippageBps:   cfg.Trade.SlippageBps,
				CUPriceML:     cfg.Trade.PriorityFeeMicroLamports,
				CopyBuysOnly:  cfg.Trade.CopyBuysOnly,
				FilterEnabled: cfg.Filter.Enabled,
			},
			Ledger:   book,
			Quality:  quality,
			Quotes:   quotes,
			PreBuilt: prebuilt,
			Builder:  jup,
			Wallet:   wallet,
			Sender:   sender,
			Balance:  tracker,
			Tracker:  tracker,
			Bus:      bus,
			Archive:  archive,
			Metrics:  metrics,
			Logger:   log,
		})

		whitelistMints := func() []string { return setKeys(allowedTokens) }
		sizeRaw := uint64(cfg.AmountUSDCDecimal().Shift(domain.USDCDecimals).IntPart())

		g.Go(func() error {
			quotes.RunRefresher(gctx, whitelistMints, sizeRaw)
			return nil
		})
		g.Go(func() error {
			prebuilt.RunRebuilder(gctx, whitelistMints, sizeRaw)
			return nil
		})
		g.Go(func() error {
			quality.RunRefresher(gctx)
			return nil
		})
		g.Go(func() error {
			orch.Run(gctx, trades)
			return nil
		})

		if cfg.Exit.Enabled {
			exitMgr := exit.New(exitConfig(cfg), book, prices, orch, bus, metrics, log)
			g.Go(func() error {
				exitMgr.Run(gctx)
				return nil
			})
		}
	} else {
		// Detection-only mode still has to drain the trade channel.
		g.Go(func() error {
			for range trades {
			}
			return nil
		})
	}

	// Observability and notification listener.
	if addr := cfg.MetricsListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.Handle("/ws", wsPub)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		server := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()
			select {
			case err := <-errCh:
				return err
			case <-gctx.Done():
				shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				return server.Shutdown(shutCtx)
			}
		})
	}

	log.WithFields(logrus.Fields{
		"stream":  cfg.Stream.Endpoint,
		"watched": watchlist.Len(),
		"copying": cfg.Trade.Enabled,
	}).Info("engine started")

	return g.Wait()
}

func exitConfig(cfg *config.Config) exit.Config {
	targets := make([]exit.TakeProfitTarget, 0, len(cfg.Exit.TakeProfitTargets))
	for _, t := range cfg.Exit.TakeProfitTargets {
		targets = append(targets, exit.TakeProfitTarget{
			ProfitPct: decimal.NewFromFloat(t.ProfitPct),
			SellPct:   decimal.NewFromFloat(t.SellPct),
		})
	}
	out := exit.Config{
		TakeProfitTargets: targets,
		StopLossPct:       decimal.NewFromFloat(cfg.Exit.StopLossPct),
		MaxHold:           time.Duration(cfg.Exit.MaxHoldHours) * time.Hour,
		CheckInterval:     time.Duration(cfg.Exit.CheckIntervalSeconds) * time.Second,
	}
	if cfg.Exit.TrailingStopPct != nil && cfg.Exit.TrailingActivationPct != nil {
		trail := decimal.NewFromFloat(*cfg.Exit.TrailingStopPct)
		act := decimal.NewFromFloat(*cfg.Exit.TrailingActivationPct)
		out.TrailingStopPct = &trail
		out.TrailingActivationPct = &act
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
