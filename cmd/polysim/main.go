package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/application/broker"
	"github.com/alejandrodnm/polysim/internal/application/engine"
	"github.com/alejandrodnm/polysim/internal/application/reconciler"
	"github.com/alejandrodnm/polysim/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one refresh cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full market table (default: compact 1-line)")
	portfolio := flag.Bool("portfolio", false, "print balance + positions and exit")
	resolve := flag.Bool("resolve", false, "run one background reconciliation pass and exit")
	refill := flag.Float64("refill", 0, "add SP to the balance and exit (0 = config default)")
	doRefill := flag.Bool("topup", false, "refill the balance and exit")
	buy := flag.String("buy", "", "market ID to trade on (requires -option and -amount)")
	option := flag.String("option", "", "option ID for -buy")
	amount := flag.Float64("amount", 0, "stake in SP for -buy")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(cfg.Feed.GammaBase, polymarket.FeedConfig{
		Limit:           cfg.Feed.FetchLimit,
		MinVolume:       cfg.Feed.MinMarketVolume,
		WinnerThreshold: cfg.Resolution.SettleThreshold,
	})

	b, err := broker.New(ctx, store, broker.Config{
		Username:        cfg.Account.Username,
		InitialBalance:  cfg.Account.InitialBalance,
		SettleThreshold: cfg.Resolution.SettleThreshold,
	})
	if err != nil {
		slog.Error("failed to init broker", "err", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole(*table)

	switch {
	case *portfolio:
		if err := notifier.NotifyPortfolio(ctx, b.Portfolio(), b.OpenPositions(), b.SettledPositions()); err != nil {
			slog.Error("portfolio print failed", "err", err)
			os.Exit(1)
		}
		return

	case *doRefill || *refill > 0:
		amt := *refill
		if amt <= 0 {
			amt = cfg.Account.RefillAmount
		}
		if err := b.RefillBalance(ctx, amt); err != nil {
			slog.Error("refill failed", "err", err)
			os.Exit(1)
		}
		return

	case *resolve:
		r := reconciler.New(reconciler.Config{Pace: cfg.ReconcilePace()}, client, b)
		summary, err := r.RunOnce(ctx)
		if err != nil {
			slog.Error("reconciliation failed", "err", err)
			os.Exit(1)
		}
		slog.Info("reconciliation done",
			"checked", summary.Checked,
			"resolved", summary.Resolved,
			"won", summary.Won,
			"payout", summary.TotalPayout,
		)
		return

	case *buy != "":
		runBuy(ctx, b, client, notifier, *buy, *option, *amount)
		return
	}

	slog.Info("polysim starting",
		"config", *configPath,
		"interval", cfg.RefreshInterval(),
		"once", *once,
	)

	eng := engine.New(engine.Config{
		RefreshInterval: cfg.RefreshInterval(),
		Once:            *once,
	}, client, b, notifier)

	if *once {
		if err := eng.Run(ctx); err != nil {
			slog.Error("engine exited with error", "err", err)
			os.Exit(1)
		}
		return
	}

	// El worker de fondo corre junto al loop principal: misma lógica de
	// resolución, distinta fuente de datos (re-consulta por mercado).
	rec := reconciler.New(reconciler.Config{
		Interval: cfg.ReconcileInterval(),
		Pace:     cfg.ReconcilePace(),
	}, client, b)
	go rec.Run(ctx)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysim stopped cleanly")
}

// runBuy refresca el feed y ejecuta un trade one-shot.
func runBuy(ctx context.Context, b *broker.Broker, client *polymarket.Client, notifier *notify.Console, marketID, optionID string, amount float64) {
	if optionID == "" || amount <= 0 {
		slog.Error("-buy requires -option and a positive -amount")
		os.Exit(1)
	}

	// Precios frescos antes de ejecutar; si el fetch falla se opera sobre
	// el último snapshot bueno.
	if markets, err := client.FetchMarkets(ctx); err != nil {
		slog.Warn("refresh before trade failed, using cached snapshot", "err", err)
	} else if _, err := b.SetMarkets(ctx, markets); err != nil {
		slog.Error("snapshot update failed", "err", err)
		os.Exit(1)
	}

	pos, err := b.PlaceTrade(ctx, marketID, optionID, amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			slog.Error("trade rejected: insufficient balance", "balance", b.Portfolio().Balance)
		case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrOptionNotFound):
			slog.Error("trade rejected: unknown market or option", "market", marketID, "option", optionID)
		default:
			slog.Error("trade failed", "err", err)
		}
		os.Exit(1)
	}

	slog.Info("position opened",
		"id", pos.ID,
		"shares", pos.Shares,
		"entry_price", pos.EntryPrice,
	)
	notifier.NotifyPortfolio(ctx, b.Portfolio(), b.OpenPositions(), b.SettledPositions())
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
