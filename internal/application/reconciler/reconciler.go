package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/application/broker"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
)

// Config contiene la configuración del reconciliador de fondo.
type Config struct {
	Interval time.Duration // cada cuánto corre el pase completo
	Pace     time.Duration // espera entre llamadas a la API (cortesía)
}

// DefaultConfig devuelve la configuración del worker: un pase cada 2h,
// 200ms entre llamadas.
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Hour,
		Pace:     200 * time.Millisecond,
	}
}

// Reconciler es la red de seguridad para mercados que resolvieron mientras
// el loop de refresh no corría (app cerrada, feed caído). Re-consulta cada
// posición abierta mercado a mercado y aplica el mismo predicado de
// win/loss que el camino in-process — ambos pasan por el broker, así que
// nunca divergen.
type Reconciler struct {
	cfg      Config
	provider ports.MarketProvider
	broker   *broker.Broker
}

// New crea un Reconciler.
func New(cfg Config, provider ports.MarketProvider, b *broker.Broker) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Hour
	}
	if cfg.Pace < 0 {
		cfg.Pace = 0
	}
	return &Reconciler{cfg: cfg, provider: provider, broker: b}
}

// Run ejecuta pases periódicos hasta que el contexto se cancele.
func (r *Reconciler) Run(ctx context.Context) error {
	slog.Info("reconciler starting", "interval", r.cfg.Interval)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("reconciliation pass failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta un único pase de reconciliación: toma un snapshot de las
// posiciones abiertas, re-consulta sus mercados y entrega el resultado al
// broker en un solo batch. Los fetches fallidos se saltan — esas
// posiciones quedan abiertas y se reintentan en el siguiente pase, sin
// corromper ningún estado local.
func (r *Reconciler) RunOnce(ctx context.Context) (broker.ResolveSummary, error) {
	open := r.broker.OpenPositions()
	if len(open) == 0 {
		return broker.ResolveSummary{}, nil
	}

	// Deduplicar por mercado Gamma: varias posiciones pueden apuntar al mismo.
	seen := make(map[string]bool, len(open))
	snapshots := make(map[string]domain.Market, len(open))

	for _, pos := range open {
		id := pos.GammaID
		if id == "" {
			id = pos.MarketID
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		m, err := r.provider.FetchMarket(ctx, id)
		if err != nil {
			slog.Warn("market check failed, skipping",
				"gamma_id", id,
				"err", err,
			)
		} else {
			snapshots[m.ID] = m
		}

		if r.cfg.Pace > 0 {
			select {
			case <-time.After(r.cfg.Pace):
			case <-ctx.Done():
				return broker.ResolveSummary{}, ctx.Err()
			}
		}
	}

	summary, err := r.broker.Reconcile(ctx, snapshots)
	if err != nil {
		return summary, err
	}

	if summary.Resolved > 0 {
		slog.Info("background reconciliation applied",
			"checked", summary.Checked,
			"resolved", summary.Resolved,
			"won", summary.Won,
		)
	}
	return summary, nil
}
