package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultUsername       = "Prophet"
	defaultInitialBalance = 100_000.0
	// DefaultSettleThreshold es la convención de Polymarket: un outcome
	// con precio ≥ 0.95 se considera resuelto aunque el flag closed
	// todavía no haya propagado. Configurable porque es una convención
	// observada del feed, no un contrato garantizado.
	DefaultSettleThreshold = 0.95
)

// Config contiene los parámetros de la cuenta y la resolución.
type Config struct {
	Username        string
	InitialBalance  float64
	SettleThreshold float64
}

// Broker es el dueño único del estado mutable: mercados, portfolio y
// posiciones. Todas las mutaciones (trades, resolución, recargas) pasan
// por el mismo mutex — un trade nunca ve un par (mercado, portfolio)
// inconsistente y la reconciliación nunca resuelve una posición por
// debajo de un trade en curso.
type Broker struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	order     []string // IDs en orden de llegada del feed
	portfolio domain.Portfolio
	open      []domain.Position
	settled   []domain.Position

	store ports.Storage
	cfg   Config
}

// New crea un Broker y carga el estado persistido. Si no hay cuenta
// guardada, arranca con el balance inicial configurado.
func New(ctx context.Context, store ports.Storage, cfg Config) (*Broker, error) {
	if cfg.Username == "" {
		cfg.Username = defaultUsername
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = defaultInitialBalance
	}
	if cfg.SettleThreshold <= 0 || cfg.SettleThreshold >= 1 {
		cfg.SettleThreshold = DefaultSettleThreshold
	}

	b := &Broker{
		markets: make(map[string]domain.Market),
		store:   store,
		cfg:     cfg,
	}

	p, open, settled, found, err := store.LoadAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker.New: load account: %w", err)
	}
	if found {
		b.portfolio = p
		b.open = open
		b.settled = settled
	} else {
		b.portfolio = domain.Portfolio{
			Username: cfg.Username,
			Balance:  cfg.InitialBalance,
		}
		slog.Info("fresh account created",
			"username", cfg.Username,
			"balance", cfg.InitialBalance,
		)
	}

	// Último snapshot bueno: permite mostrar precios y aceptar trades
	// aunque el primer fetch tras el arranque falle.
	if markets, err := store.LoadMarkets(ctx); err != nil {
		slog.Warn("could not load cached markets", "err", err)
	} else {
		b.setMarketsLocked(markets)
	}

	return b, nil
}

// PlaceTrade valida y ejecuta un trade. Toda la validación ocurre antes
// de cualquier mutación: un trade rechazado deja pools, balance y
// posiciones exactamente como estaban.
func (b *Broker) PlaceTrade(ctx context.Context, marketID, optionID string, amount float64) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if amount <= 0 {
		return domain.Position{}, domain.ErrInvalidAmount
	}
	if amount > b.portfolio.Balance {
		return domain.Position{}, domain.ErrInsufficientBalance
	}
	m, ok := b.markets[marketID]
	if !ok {
		return domain.Position{}, domain.ErrMarketNotFound
	}

	result, err := domain.ExecuteTrade(m, optionID, amount)
	if err != nil {
		return domain.Position{}, err
	}

	opt, _ := result.Market.Option(optionID)
	pos := domain.Position{
		ID:          uuid.New().String(),
		MarketID:    marketID,
		GammaID:     opt.GammaID,
		OptionID:    optionID,
		Question:    m.Question,
		OptionLabel: opt.Label,
		Shares:      result.SharesReceived,
		EntryPrice:  result.ExecutionPrice,
		AmountPaid:  amount,
		PlacedAt:    time.Now().UTC(),
		Status:      domain.PositionOpen,
	}

	// Commit: a partir de aquí todo se aplica, o nada si la persistencia
	// falla (se revierte el estado en memoria).
	prevMarket := b.markets[marketID]
	prevPortfolio := b.portfolio

	b.markets[marketID] = result.Market
	b.portfolio.Balance -= amount
	b.portfolio.TotalTrades++
	b.open = append(b.open, pos)

	if err := b.persistLocked(ctx); err != nil {
		b.markets[marketID] = prevMarket
		b.portfolio = prevPortfolio
		b.open = b.open[:len(b.open)-1]
		return domain.Position{}, fmt.Errorf("broker.PlaceTrade: persist: %w", err)
	}

	slog.Info("trade placed",
		"market", domain.TruncateQuestion(m.Question, m.ID, 40),
		"option", opt.Label,
		"amount", amount,
		"price", fmt.Sprintf("%.3f", result.ExecutionPrice),
		"shares", fmt.Sprintf("%.2f", result.SharesReceived),
		"balance", fmt.Sprintf("%.2f", b.portfolio.Balance),
	)
	return pos, nil
}

// RefillBalance añade amount al balance. Es una comodidad de
// debug/testing, sin más invariante que amount > 0.
func (b *Broker) RefillBalance(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.portfolio
	b.portfolio.Balance += amount
	if err := b.persistLocked(ctx); err != nil {
		b.portfolio = prev
		return fmt.Errorf("broker.RefillBalance: persist: %w", err)
	}
	slog.Info("balance refilled", "amount", amount, "balance", b.portfolio.Balance)
	return nil
}

// SetMarkets reemplaza el snapshot de mercados con datos frescos del feed
// y ejecuta el pase de resolución contra él. Es el camino in-process que
// corre tras cada refresh.
func (b *Broker) SetMarkets(ctx context.Context, markets []domain.Market) (ResolveSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setMarketsLocked(markets)
	if err := b.store.SaveMarkets(ctx, markets); err != nil {
		slog.Warn("could not cache market snapshot", "err", err)
	}

	return b.resolveLocked(ctx, b.markets)
}

// Reconcile ejecuta el pase de resolución contra snapshots obtenidos
// fuera del refresh normal (el worker de fondo re-consulta mercado a
// mercado). No reemplaza el snapshot principal. Usa exactamente el mismo
// predicado de win/loss que SetMarkets para que ambos caminos nunca
// diverjan.
func (b *Broker) Reconcile(ctx context.Context, snapshots map[string]domain.Market) (ResolveSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.resolveLocked(ctx, snapshots)
}

// setMarketsLocked indexa el snapshot. Requiere b.mu.
func (b *Broker) setMarketsLocked(markets []domain.Market) {
	b.markets = make(map[string]domain.Market, len(markets))
	b.order = b.order[:0]
	for _, m := range markets {
		b.markets[m.ID] = m
		b.order = append(b.order, m.ID)
	}
}

// persistLocked guarda cuenta y posiciones. Requiere b.mu.
func (b *Broker) persistLocked(ctx context.Context) error {
	return b.store.SaveAccount(ctx, b.portfolio, b.open, b.settled)
}

// --- lecturas (snapshots consistentes, pueden ir stale-by-one) ---

// Portfolio devuelve una copia del estado de la cuenta.
func (b *Broker) Portfolio() domain.Portfolio {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.portfolio
}

// OpenPositions devuelve las posiciones abiertas.
func (b *Broker) OpenPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, len(b.open))
	copy(out, b.open)
	return out
}

// SettledPositions devuelve el histórico de posiciones resueltas.
func (b *Broker) SettledPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, len(b.settled))
	copy(out, b.settled)
	return out
}

// Markets devuelve el snapshot actual en el orden del feed.
func (b *Broker) Markets() []domain.Market {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Market, 0, len(b.order))
	for _, id := range b.order {
		if m, ok := b.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Market devuelve el mercado con el ID dado.
func (b *Broker) Market(id string) (domain.Market, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[id]
	return m, ok
}

// Price devuelve la probabilidad actual de una opción.
func (b *Broker) Price(marketID, optionID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[marketID]
	if !ok {
		return 0
	}
	return m.Probability(optionID)
}

// EstimateReturn calcula las shares de un trade hipotético sin mutar nada.
func (b *Broker) EstimateReturn(marketID, optionID string, amount float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[marketID]
	if !ok {
		return 0
	}
	return domain.EstimateReturn(m, optionID, amount)
}
