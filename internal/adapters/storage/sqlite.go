package storage

// sqlite.go — persistencia de cuenta y snapshot de mercados.
//
// Estrategia:
//   - `account`: una única fila (la cuenta se crea una vez por instalación).
//   - `positions`: abiertas y resueltas en la misma tabla, separadas por
//     status. Se reescriben completas en cada save dentro de una
//     transacción — el set es pequeño (decenas) y así el guardado es
//     atómico de verdad: o se escribe todo o nada.
//   - `markets`: último snapshot bueno del feed, con opciones e histórico
//     como columnas JSON. El schema tolera campos ausentes para que el
//     formato pueda evolucionar entre versiones.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS account (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    username       TEXT    NOT NULL,
    balance        REAL    NOT NULL DEFAULT 0,
    total_winnings REAL    NOT NULL DEFAULT 0,
    total_trades   INTEGER NOT NULL DEFAULT 0,
    trades_won     INTEGER NOT NULL DEFAULT 0,
    updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    market_id    TEXT NOT NULL,
    gamma_id     TEXT NOT NULL DEFAULT '',
    option_id    TEXT NOT NULL,
    question     TEXT,
    option_label TEXT,
    shares       REAL NOT NULL,
    entry_price  REAL NOT NULL,
    amount_paid  REAL NOT NULL,
    placed_at    DATETIME NOT NULL,
    status       TEXT NOT NULL DEFAULT 'OPEN',
    resolved_at  DATETIME,
    payout       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS markets (
    id           TEXT PRIMARY KEY,
    question     TEXT,
    market_type  TEXT NOT NULL DEFAULT 'BINARY',
    resolved     INTEGER NOT NULL DEFAULT 0,
    winner_id    TEXT NOT NULL DEFAULT '',
    total_volume REAL NOT NULL DEFAULT 0,
    traders      INTEGER NOT NULL DEFAULT 0,
    options      TEXT NOT NULL DEFAULT '[]',
    history      TEXT NOT NULL DEFAULT '[]',
    created_at   DATETIME,
    fetched_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
`

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y
// aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// LoadAccount devuelve el portfolio y las posiciones guardadas.
// found=false indica instalación fresca (sin fila de cuenta).
func (s *SQLiteStorage) LoadAccount(ctx context.Context) (domain.Portfolio, []domain.Position, []domain.Position, bool, error) {
	var p domain.Portfolio
	err := s.db.QueryRowContext(ctx,
		`SELECT username, balance, total_winnings, total_trades, trades_won FROM account WHERE id = 1`,
	).Scan(&p.Username, &p.Balance, &p.TotalWinnings, &p.TotalTrades, &p.TradesWon)
	if err == sql.ErrNoRows {
		return domain.Portfolio{}, nil, nil, false, nil
	}
	if err != nil {
		return domain.Portfolio{}, nil, nil, false, fmt.Errorf("storage.LoadAccount: account: %w", err)
	}

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return domain.Portfolio{}, nil, nil, false, err
	}

	var open, settled []domain.Position
	for _, pos := range positions {
		if pos.IsOpen() {
			open = append(open, pos)
		} else {
			settled = append(settled, pos)
		}
	}
	return p, open, settled, true, nil
}

// SaveAccount persiste cuenta y posiciones en una sola transacción.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, p domain.Portfolio, open, settled []domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAccount: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account (id, username, balance, total_winnings, total_trades, trades_won, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username       = excluded.username,
			balance        = excluded.balance,
			total_winnings = excluded.total_winnings,
			total_trades   = excluded.total_trades,
			trades_won     = excluded.trades_won,
			updated_at     = excluded.updated_at
	`, p.Username, p.Balance, p.TotalWinnings, p.TotalTrades, p.TradesWon, time.Now().UTC()); err != nil {
		return fmt.Errorf("storage.SaveAccount: upsert account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("storage.SaveAccount: clear positions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions
			(id, market_id, gamma_id, option_id, question, option_label,
			 shares, entry_price, amount_paid, placed_at, status, resolved_at, payout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveAccount: prepare: %w", err)
	}
	defer stmt.Close()

	for _, pos := range append(append([]domain.Position{}, open...), settled...) {
		var resolvedAt *time.Time
		if pos.ResolvedAt != nil {
			t := pos.ResolvedAt.UTC()
			resolvedAt = &t
		}
		if _, err := stmt.ExecContext(ctx,
			pos.ID, pos.MarketID, pos.GammaID, pos.OptionID,
			pos.Question, pos.OptionLabel,
			pos.Shares, pos.EntryPrice, pos.AmountPaid,
			pos.PlacedAt.UTC(), string(pos.Status), resolvedAt, pos.Payout,
		); err != nil {
			return fmt.Errorf("storage.SaveAccount: insert position %s: %w", pos.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAccount: commit: %w", err)
	}
	return nil
}

// SaveMarkets reemplaza el snapshot de mercados guardado.
func (s *SQLiteStorage) SaveMarkets(ctx context.Context, markets []domain.Market) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveMarkets: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM markets`); err != nil {
		return fmt.Errorf("storage.SaveMarkets: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO markets
			(id, question, market_type, resolved, winner_id,
			 total_volume, traders, options, history, created_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveMarkets: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range markets {
		options, err := json.Marshal(m.Options)
		if err != nil {
			return fmt.Errorf("storage.SaveMarkets: marshal options %s: %w", m.ID, err)
		}
		history, err := json.Marshal(m.PriceHistory)
		if err != nil {
			return fmt.Errorf("storage.SaveMarkets: marshal history %s: %w", m.ID, err)
		}
		resolved := 0
		if m.Resolved {
			resolved = 1
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.Question, string(m.Type), resolved, m.WinnerOptionID,
			m.TotalVolume, m.TotalTraders, string(options), string(history),
			m.CreatedAt.UTC(), now,
		); err != nil {
			return fmt.Errorf("storage.SaveMarkets: insert %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveMarkets: commit: %w", err)
	}
	return nil
}

// LoadMarkets devuelve el último snapshot guardado. Filas con JSON
// malformado se saltan en vez de fallar la carga entera.
func (s *SQLiteStorage) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, market_type, resolved, winner_id,
		       total_volume, traders, options, history, created_at
		FROM markets
		ORDER BY total_volume DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadMarkets: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var typ, options, history string
		var resolved int
		var createdAt sql.NullTime

		if err := rows.Scan(
			&m.ID, &m.Question, &typ, &resolved, &m.WinnerOptionID,
			&m.TotalVolume, &m.TotalTraders, &options, &history, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: scan row: %w", err)
		}

		m.Type = domain.MarketType(typ)
		m.Resolved = resolved == 1
		if createdAt.Valid {
			m.CreatedAt = createdAt.Time
		}
		if err := json.Unmarshal([]byte(options), &m.Options); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(history), &m.PriceHistory)

		markets = append(markets, m)
	}

	return markets, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// loadPositions lee todas las posiciones guardadas con defaults tolerantes.
func (s *SQLiteStorage) loadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, gamma_id, option_id, question, option_label,
		       shares, entry_price, amount_paid, placed_at, status, resolved_at, payout
		FROM positions
		ORDER BY placed_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.loadPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var question, label sql.NullString
		var status string
		var resolvedAt sql.NullTime

		if err := rows.Scan(
			&pos.ID, &pos.MarketID, &pos.GammaID, &pos.OptionID,
			&question, &label,
			&pos.Shares, &pos.EntryPrice, &pos.AmountPaid,
			&pos.PlacedAt, &status, &resolvedAt, &pos.Payout,
		); err != nil {
			return nil, fmt.Errorf("storage.loadPositions: scan row: %w", err)
		}

		pos.Question = question.String
		pos.OptionLabel = label.String
		pos.Status = domain.PositionStatus(status)
		if pos.Status == "" {
			pos.Status = domain.PositionOpen
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			pos.ResolvedAt = &t
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}
