package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// ResolveSummary es el resultado de un pase de resolución.
type ResolveSummary struct {
	Checked     int
	Resolved    int
	Won         int
	Lost        int
	TotalPayout float64
}

// resolveLocked recorre las posiciones abiertas contra los snapshots dados,
// acredita a las ganadoras y retira las resueltas al histórico. Requiere b.mu.
//
// El predicado dual por posición:
//
//   - Mercado sin flag de resuelto: si la opción de la posición lleva un
//     precio externo observado ≥ threshold, el feed ya la da por ganada
//     aunque el flag closed no haya propagado → win anticipado. Las
//     probabilidades derivadas de pools nunca disparan este atajo (un
//     trader podría inflar su propio pool).
//   - Mercado resuelto: gana si su opción es la ganadora registrada
//     (match por ID; posiciones de mercados agrupados caen al lado Yes).
//
// Todo lo resuelto en el pase se aplica como un único batch al portfolio y
// se persiste una sola vez — sin estados a medio escribir si la
// persistencia falla a mitad del bucle. Re-ejecutar con las mismas
// entradas es un no-op: las posiciones ya no están en el set abierto.
func (b *Broker) resolveLocked(ctx context.Context, snapshots map[string]domain.Market) (ResolveSummary, error) {
	summary := ResolveSummary{Checked: len(b.open)}
	if len(b.open) == 0 {
		return summary, nil
	}

	now := time.Now().UTC()
	remaining := b.open[:0:0]
	var justSettled []domain.Position

	for _, pos := range b.open {
		m, ok := lookupMarket(snapshots, pos)
		if !ok {
			// Sin datos frescos para este mercado: se deja abierta y se
			// reintenta en el siguiente ciclo.
			remaining = append(remaining, pos)
			continue
		}

		settled, won := b.settle(pos, m)
		if !settled {
			remaining = append(remaining, pos)
			continue
		}

		resolved := pos.Settle(won, now)
		justSettled = append(justSettled, resolved)
		summary.Resolved++
		if won {
			summary.Won++
			summary.TotalPayout += resolved.Payout
			slog.Info("position won",
				"option", pos.OptionLabel,
				"payout", fmt.Sprintf("%.2f", resolved.Payout),
			)
		} else {
			summary.Lost++
			slog.Info("position lost", "option", pos.OptionLabel)
		}
	}

	if summary.Resolved == 0 {
		return summary, nil
	}

	// Batch único: balance, contadores y listas se actualizan juntos y se
	// persisten una sola vez.
	prevPortfolio := b.portfolio
	prevOpen := b.open
	prevSettled := b.settled

	b.portfolio.Balance += summary.TotalPayout
	b.portfolio.TradesWon += summary.Won
	b.portfolio.TotalWinnings += summary.TotalPayout
	b.open = remaining
	b.settled = append(b.settled, justSettled...)

	if err := b.persistLocked(ctx); err != nil {
		b.portfolio = prevPortfolio
		b.open = prevOpen
		b.settled = prevSettled
		return ResolveSummary{Checked: summary.Checked}, fmt.Errorf("broker.resolve: persist: %w", err)
	}

	slog.Info("resolution pass applied",
		"resolved", summary.Resolved,
		"won", summary.Won,
		"payout", fmt.Sprintf("%.2f", summary.TotalPayout),
		"balance", fmt.Sprintf("%.2f", b.portfolio.Balance),
	)
	return summary, nil
}

// settle decide si una posición queda resuelta contra el snapshot dado y,
// en su caso, si ganó. Es el único predicado de win/loss del sistema: lo
// comparten el camino in-process y el reconciliador de fondo.
func (b *Broker) settle(pos domain.Position, m domain.Market) (settled, won bool) {
	opt, ok := m.OptionForPosition(pos)
	if !ok {
		return false, false
	}

	if !m.Resolved {
		// Win anticipado: solo con precio externo observado.
		if opt.LivePrice > 0 && opt.LivePrice >= b.cfg.SettleThreshold {
			return true, true
		}
		return false, false
	}

	if m.WinnerOptionID == "" {
		// Cerrado sin ganador con precio ≥ threshold: nadie cobra.
		return true, false
	}
	winner, ok := m.Option(m.WinnerOptionID)
	if !ok {
		return true, false
	}
	return true, winner.ID == opt.ID
}

// lookupMarket busca el snapshot que aplica a una posición: primero por el
// ID del mercado, después por el ID Gamma (camino del reconciliador, que
// indexa por mercado re-consultado).
func lookupMarket(snapshots map[string]domain.Market, pos domain.Position) (domain.Market, bool) {
	if m, ok := snapshots[pos.MarketID]; ok {
		return m, true
	}
	if pos.GammaID != "" {
		if m, ok := snapshots[pos.GammaID]; ok {
			return m, true
		}
	}
	return domain.Market{}, false
}
