package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/application/broker"
	"github.com/alejandrodnm/polysim/internal/ports"
)

// Config contiene la configuración del loop de refresh.
type Config struct {
	RefreshInterval time.Duration
	Once            bool
}

// DefaultConfig devuelve una configuración sensata.
func DefaultConfig() Config {
	return Config{RefreshInterval: 30 * time.Second}
}

// Engine es el orquestador del ciclo de refresh: fetch del feed →
// snapshot al broker (que resuelve posiciones) → notificación.
type Engine struct {
	cfg      Config
	provider ports.MarketProvider
	broker   *broker.Broker
	notifier ports.Notifier
}

// New crea un Engine con todas las dependencias inyectadas.
func New(cfg Config, provider ports.MarketProvider, b *broker.Broker, notifier ports.Notifier) *Engine {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		broker:   b,
		notifier: notifier,
	}
}

// Run ejecuta el loop de refresh hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un ciclo.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.cfg.RefreshInterval,
		"once", e.cfg.Once,
	)

	if err := e.RunOnce(ctx); err != nil {
		slog.Error("refresh cycle failed", "err", err)
		if e.cfg.Once {
			return err
		}
	}

	if e.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				// El broker sigue operando sobre el último snapshot
				// bueno; se reintenta en el siguiente tick.
				slog.Error("refresh cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta un único ciclo de refresh + resolución.
func (e *Engine) RunOnce(ctx context.Context) error {
	started := time.Now()

	markets, err := e.provider.FetchMarkets(ctx)
	if err != nil {
		return err
	}

	summary, err := e.broker.SetMarkets(ctx, markets)
	if err != nil {
		return err
	}

	slog.Info("refresh complete",
		"markets", len(markets),
		"positions_checked", summary.Checked,
		"resolved", summary.Resolved,
		"took", time.Since(started).Round(time.Millisecond),
	)

	if e.notifier != nil {
		if err := e.notifier.NotifyMarkets(ctx, e.broker.Markets()); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return nil
}
