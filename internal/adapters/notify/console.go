package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyMarkets imprime el snapshot de mercados en el modo configurado.
func (c *Console) NotifyMarkets(_ context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no markets in feed\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printMarketTable(markets)
	} else {
		c.printCompact(markets)
	}
	return nil
}

// NotifyPortfolio imprime balance, contadores y posiciones.
func (c *Console) NotifyPortfolio(_ context.Context, p domain.Portfolio, open, settled []domain.Position) error {
	fmt.Fprintf(c.out, "\n%s — balance %.2f SP | trades %d | won %d (%.1f%%) | winnings %.2f SP\n",
		p.Username, p.Balance, p.TotalTrades, p.TradesWon, p.WinRate(), p.TotalWinnings)

	if len(open) > 0 {
		fmt.Fprintln(c.out, "\nOpen positions:")
		c.printPositions(open, false)
	}
	if len(settled) > 0 {
		fmt.Fprintln(c.out, "\nHistory:")
		c.printPositions(settled, true)
	}
	if len(open) == 0 && len(settled) == 0 {
		fmt.Fprintln(c.out, "no positions yet")
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(markets []domain.Market) {
	now := time.Now().Format("15:04:05")

	binary, multi, resolved := 0, 0, 0
	var volume float64
	for _, m := range markets {
		switch m.Type {
		case domain.MarketBinary:
			binary++
		default:
			multi++
		}
		if m.Resolved {
			resolved++
		}
		volume += m.TotalVolume
	}

	fmt.Fprintf(c.out, "[%s] %d markets (%d binary, %d multi) | %d resolved | vol $%.0f\n",
		now, len(markets), binary, multi, resolved, volume)
}

// printMarketTable imprime la tabla completa de mercados con precios.
func (c *Console) printMarketTable(markets []domain.Market) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Type", "Market", "Top option", "Price", "Volume", "Status")

	for i, m := range markets {
		top, topPrice := topOption(m)
		status := "open"
		if m.Resolved {
			status = "resolved"
		}

		table.Append(
			fmt.Sprintf("%d", i+1),
			string(m.Type),
			domain.TruncateQuestion(m.Question, m.ID, 44),
			domain.TruncateQuestion(top, "-", 24),
			fmt.Sprintf("%.1f%%", topPrice*100),
			fmt.Sprintf("$%.0f", m.TotalVolume),
			status,
		)
	}

	table.Render()
	fmt.Fprintln(c.out, "  Price = implied probability of the leading option (estimate, not a fill price)")
}

// printPositions imprime una tabla de posiciones.
func (c *Console) printPositions(positions []domain.Position, settled bool) {
	table := tablewriter.NewWriter(c.out)
	if settled {
		table.Header("Market", "Option", "Shares", "Paid", "Result", "Payout")
	} else {
		table.Header("Market", "Option", "Shares", "Entry", "Paid")
	}

	for _, pos := range positions {
		if settled {
			table.Append(
				domain.TruncateQuestion(pos.Question, pos.MarketID, 40),
				pos.OptionLabel,
				fmt.Sprintf("%.2f", pos.Shares),
				fmt.Sprintf("%.2f", pos.AmountPaid),
				string(pos.Status),
				fmt.Sprintf("%.2f", pos.Payout),
			)
		} else {
			table.Append(
				domain.TruncateQuestion(pos.Question, pos.MarketID, 40),
				pos.OptionLabel,
				fmt.Sprintf("%.2f", pos.Shares),
				fmt.Sprintf("%.3f", pos.EntryPrice),
				fmt.Sprintf("%.2f", pos.AmountPaid),
			)
		}
	}

	table.Render()
}

// topOption devuelve la opción con mayor probabilidad del mercado.
func topOption(m domain.Market) (string, float64) {
	var label string
	var best float64
	for _, o := range m.Options {
		if p := m.Probability(o.ID); p > best {
			best = p
			label = o.Label
		}
	}
	if label == "" {
		label = "-"
	}
	return strings.TrimSpace(label), best
}
